// Package ratecache keeps the last successfully fetched usage snapshot so that
// consumers can render something when a live fetch fails.
package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/securestore"
	"github.com/florianilch/ratemeter/internal/usage"
)

// ErrNotCacheable is returned when saving a snapshot without real usage data.
var ErrNotCacheable = errors.New("failure snapshots are not cached")

// CachedRateData is the persisted form of usage.RateData. Timestamps are
// milliseconds since the epoch; nil reset times mean absent.
type CachedRateData struct {
	SessionUtilization      float64 `json:"sessionUtilization"`
	SessionResetsAt         *int64  `json:"sessionResetsAt,omitempty"`
	WeeklyUtilization       float64 `json:"weeklyUtilization"`
	WeeklyResetsAt          *int64  `json:"weeklyResetsAt,omitempty"`
	WeeklySonnetUtilization float64 `json:"weeklySonnetUtilization"`
	WeeklySonnetResetsAt    *int64  `json:"weeklySonnetResetsAt,omitempty"`
	OverageEnabled          bool    `json:"overageEnabled"`
	OverageUtilization      float64 `json:"overageUtilization"`
	OverageSpent            float64 `json:"overageSpent"`
	OverageLimit            float64 `json:"overageLimit"`
	FetchedAt               int64   `json:"fetchedAt"`
	Status                  string  `json:"status"`
}

// FromRateData flattens a snapshot for storage.
func FromRateData(data usage.RateData) CachedRateData {
	return CachedRateData{
		SessionUtilization:      data.Session.Utilization,
		SessionResetsAt:         toMillis(data.Session.ResetsAt),
		WeeklyUtilization:       data.Weekly.Utilization,
		WeeklyResetsAt:          toMillis(data.Weekly.ResetsAt),
		WeeklySonnetUtilization: data.WeeklySonnet.Utilization,
		WeeklySonnetResetsAt:    toMillis(data.WeeklySonnet.ResetsAt),
		OverageEnabled:          data.Overage.IsEnabled,
		OverageUtilization:      data.Overage.Utilization,
		OverageSpent:            float64(data.Overage.Spent),
		OverageLimit:            float64(data.Overage.Limit),
		FetchedAt:               data.FetchedAt.UnixMilli(),
		Status:                  string(data.Status),
	}
}

// ToRateData restores the snapshot. Timestamps are precise to the millisecond.
func (c CachedRateData) ToRateData() usage.RateData {
	status := usage.Status(c.Status)
	if status == "" {
		status = usage.StatusUnknown
	}
	return usage.RateData{
		Session:      usage.CategoryData{Utilization: c.SessionUtilization, ResetsAt: fromMillis(c.SessionResetsAt)},
		Weekly:       usage.CategoryData{Utilization: c.WeeklyUtilization, ResetsAt: fromMillis(c.WeeklyResetsAt)},
		WeeklySonnet: usage.CategoryData{Utilization: c.WeeklySonnetUtilization, ResetsAt: fromMillis(c.WeeklySonnetResetsAt)},
		Overage: usage.OverageData{
			IsEnabled:   c.OverageEnabled,
			Utilization: c.OverageUtilization,
			Spent:       usage.Money(c.OverageSpent),
			Limit:       usage.Money(c.OverageLimit),
		},
		FetchedAt: time.UnixMilli(c.FetchedAt),
		Status:    status,
	}
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}

// Cache stores one snapshot under the cached_rate_data key.
type Cache struct {
	store securestore.Store
}

// New creates a Cache over store.
func New(store securestore.Store) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}
	return &Cache{store: store}, nil
}

// Save replaces the cached snapshot. Failure snapshots are refused with
// ErrNotCacheable so a transient error never displaces real data.
func (c *Cache) Save(ctx context.Context, data usage.RateData) error {
	if data.Status.IsFailure() {
		return ErrNotCacheable
	}

	raw, err := json.Marshal(FromRateData(data))
	if err != nil {
		return fmt.Errorf("encoding cached rate data: %w", err)
	}
	if err := c.store.Save(ctx, credentials.KeyCachedRateData, raw); err != nil {
		return fmt.Errorf("saving cached rate data: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, or nil if there is none.
func (c *Cache) Load(ctx context.Context) (*usage.RateData, error) {
	raw, err := c.store.Load(ctx, credentials.KeyCachedRateData)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cached rate data: %w", err)
	}

	var cached CachedRateData
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("decoding cached rate data: %w", err)
	}
	data := cached.ToRateData()
	return &data, nil
}
