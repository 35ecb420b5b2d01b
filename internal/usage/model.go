// Package usage fetches rate-limit usage from Anthropic's OAuth usage API and
// normalizes it into RateData snapshots.
//
// Fetches never fail from the caller's point of view: network, status and
// decode failures come back as snapshots with a failure Status so that
// periodic consumers can render something without error handling.
package usage

import (
	"fmt"
	"time"
)

// Status is the overall state of a RateData snapshot.
type Status string

const (
	StatusActive       Status = "active"
	StatusWarning      Status = "warning"
	StatusRateLimited  Status = "rate_limited"
	StatusUnauthorized Status = "unauthorized"
	StatusNotLoggedIn  Status = "not_logged_in"
	StatusError        Status = "error"
	StatusUnknown      Status = "unknown"
)

// Label returns the human-readable status text.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusWarning:
		return "Warning"
	case StatusRateLimited:
		return "Rate Limited"
	case StatusUnauthorized:
		return "Session Expired"
	case StatusNotLoggedIn:
		return "Not Logged In"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// NeedsLogin reports whether the user has to authenticate again.
func (s Status) NeedsLogin() bool {
	return s == StatusUnauthorized || s == StatusNotLoggedIn
}

// IsFailure reports whether the snapshot carries no real usage data.
func (s Status) IsFailure() bool {
	return s == StatusError || s.NeedsLogin()
}

// Money is an amount in dollars.
type Money float64

func (m Money) String() string {
	return fmt.Sprintf("$%.2f", float64(m))
}

// CategoryData is one rate-limit window.
type CategoryData struct {
	// Utilization is on the 0..1 scale and may exceed 1.
	Utilization float64    `json:"utilization" yaml:"utilization"`
	ResetsAt    *time.Time `json:"resets_at,omitempty" yaml:"resets_at,omitempty"`
}

// DisplayFraction returns Utilization clamped to [0, 1] for progress bars.
func (c CategoryData) DisplayFraction() float64 {
	return min(max(c.Utilization, 0), 1)
}

// OverageData is pay-as-you-go usage beyond the plan limits. Spent and Limit
// are only meaningful when IsEnabled is set.
type OverageData struct {
	IsEnabled   bool    `json:"is_enabled" yaml:"is_enabled"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
	Spent       Money   `json:"spent" yaml:"spent"`
	Limit       Money   `json:"limit" yaml:"limit"`
}

// RateData is a normalized usage snapshot.
type RateData struct {
	Session      CategoryData `json:"session" yaml:"session"`             // five_hour
	Weekly       CategoryData `json:"weekly" yaml:"weekly"`               // seven_day
	WeeklySonnet CategoryData `json:"weekly_sonnet" yaml:"weekly_sonnet"` // seven_day_sonnet
	Overage      OverageData  `json:"overage" yaml:"overage"`
	FetchedAt    time.Time    `json:"fetched_at" yaml:"fetched_at"`
	Status       Status       `json:"status" yaml:"status"`
}

// FailureSnapshot returns a zeroed snapshot carrying only status and time.
func FailureSnapshot(status Status, now time.Time) RateData {
	return RateData{FetchedAt: now, Status: status}
}

// Placeholder returns a plausible sample snapshot for previews.
func Placeholder(now time.Time) RateData {
	inHour := now.Add(time.Hour)
	inDay := now.Add(24 * time.Hour)
	return RateData{
		Session:      CategoryData{Utilization: 0.35, ResetsAt: &inHour},
		Weekly:       CategoryData{Utilization: 0.52, ResetsAt: &inDay},
		WeeklySonnet: CategoryData{Utilization: 0.28, ResetsAt: &inDay},
		FetchedAt:    now,
		Status:       StatusActive,
	}
}

// Classify derives the overall status from the raw 0..100 five-hour and
// seven-day utilizations.
func Classify(fiveHour, sevenDay float64) Status {
	maxUtil := max(fiveHour, sevenDay)
	switch {
	case maxUtil >= 100:
		return StatusRateLimited
	case maxUtil >= 80:
		return StatusWarning
	default:
		return StatusActive
	}
}
