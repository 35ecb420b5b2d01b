package usage

import (
	"time"
)

// usageResponse is the body of GET /api/oauth/usage. Windows the account
// doesn't have come back as null.
type usageResponse struct {
	FiveHour       *usageWindow `json:"five_hour"`
	SevenDay       *usageWindow `json:"seven_day"`
	SevenDaySonnet *usageWindow `json:"seven_day_sonnet"`
	ExtraUsage     *extraUsage  `json:"extra_usage"`
}

type usageWindow struct {
	Utilization float64 `json:"utilization"` // 0..100
	ResetsAt    *string `json:"resets_at"`
}

type extraUsage struct {
	IsEnabled    bool     `json:"is_enabled"`
	Utilization  float64  `json:"utilization"`   // 0..100
	UsedCredits  *float64 `json:"used_credits"`  // cents
	MonthlyLimit *float64 `json:"monthly_limit"` // cents
}

// profileResponse is the body of GET /api/oauth/profile.
type profileResponse struct {
	Account struct {
		Email       string `json:"email"`
		FullName    string `json:"full_name"`
		DisplayName string `json:"display_name"`
	} `json:"account"`
	Organization struct {
		Name             string `json:"name"`
		OrganizationType string `json:"organization_type"`
	} `json:"organization"`
}

func (r *usageResponse) toRateData(now time.Time) RateData {
	data := RateData{
		Session:      r.FiveHour.toCategory(),
		Weekly:       r.SevenDay.toCategory(),
		WeeklySonnet: r.SevenDaySonnet.toCategory(),
		Overage:      r.ExtraUsage.toOverage(),
		FetchedAt:    now,
	}
	data.Status = Classify(r.FiveHour.utilization(), r.SevenDay.utilization())
	return data
}

func (w *usageWindow) utilization() float64 {
	if w == nil {
		return 0
	}
	return w.Utilization
}

func (w *usageWindow) toCategory() CategoryData {
	if w == nil {
		return CategoryData{}
	}
	category := CategoryData{Utilization: w.Utilization / 100}
	if w.ResetsAt != nil {
		if t, ok := parseTimestamp(*w.ResetsAt); ok {
			category.ResetsAt = &t
		}
	}
	return category
}

func (e *extraUsage) toOverage() OverageData {
	if e == nil {
		return OverageData{}
	}
	return OverageData{
		IsEnabled:   e.IsEnabled,
		Utilization: e.Utilization / 100,
		Spent:       centsToMoney(e.UsedCredits),
		Limit:       centsToMoney(e.MonthlyLimit),
	}
}

func centsToMoney(cents *float64) Money {
	if cents == nil {
		return 0
	}
	return Money(*cents / 100)
}

// parseTimestamp accepts RFC 3339 with fractional seconds first, then without.
// Unparseable values are treated as absent.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
