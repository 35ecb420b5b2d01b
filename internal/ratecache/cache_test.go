package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/securestore"
	"github.com/florianilch/ratemeter/internal/usage"
)

func newTestCache(t *testing.T) (*Cache, *securestore.MemoryStore) {
	t.Helper()
	store := securestore.NewMemoryStore()
	cache, err := New(store)
	require.NoError(t, err)
	return cache, store
}

func sampleRateData() usage.RateData {
	sessionReset := time.Date(2026, 10, 18, 14, 30, 0, 123456789, time.UTC)
	weeklyReset := time.Date(2026, 10, 22, 8, 0, 0, 0, time.UTC)
	return usage.RateData{
		Session:      usage.CategoryData{Utilization: 0.425, ResetsAt: &sessionReset},
		Weekly:       usage.CategoryData{Utilization: 1.12, ResetsAt: &weeklyReset},
		WeeklySonnet: usage.CategoryData{Utilization: 0.12},
		Overage:      usage.OverageData{IsEnabled: true, Utilization: 0.25, Spent: 12.5, Limit: 50},
		FetchedAt:    time.Date(2026, 10, 18, 12, 0, 0, 987654321, time.UTC),
		Status:       usage.StatusRateLimited,
	}
}

func TestRoundTripPreservesSnapshot(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	original := sampleRateData()

	require.NoError(t, cache.Save(ctx, original))
	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Equal(t, original.Status, loaded.Status)
	require.Equal(t, original.Session.Utilization, loaded.Session.Utilization)
	require.Equal(t, original.Weekly.Utilization, loaded.Weekly.Utilization)
	require.Equal(t, original.WeeklySonnet.Utilization, loaded.WeeklySonnet.Utilization)
	require.Equal(t, original.Overage, loaded.Overage)
	require.Nil(t, loaded.WeeklySonnet.ResetsAt)

	// Sub-millisecond precision is dropped
	require.True(t, original.Session.ResetsAt.Truncate(time.Millisecond).Equal(*loaded.Session.ResetsAt))
	require.True(t, original.Weekly.ResetsAt.Equal(*loaded.Weekly.ResetsAt))
	require.True(t, original.FetchedAt.Truncate(time.Millisecond).Equal(loaded.FetchedAt))
}

func TestLoadWithoutSnapshot(t *testing.T) {
	cache, _ := newTestCache(t)

	loaded, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestSaveRefusesFailureSnapshots(t *testing.T) {
	for _, status := range []usage.Status{usage.StatusError, usage.StatusUnauthorized, usage.StatusNotLoggedIn} {
		t.Run(string(status), func(t *testing.T) {
			cache, _ := newTestCache(t)
			ctx := context.Background()
			require.NoError(t, cache.Save(ctx, sampleRateData()))

			err := cache.Save(ctx, usage.FailureSnapshot(status, time.Now()))
			require.ErrorIs(t, err, ErrNotCacheable)

			// The previous snapshot survives
			loaded, err := cache.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, usage.StatusRateLimited, loaded.Status)
		})
	}
}

func TestSaveKeepsOverageFieldsWhenDisabled(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	data := sampleRateData()
	data.Overage = usage.OverageData{IsEnabled: false, Spent: 3, Limit: 0}

	require.NoError(t, cache.Save(ctx, data))

	raw, err := store.Load(ctx, credentials.KeyCachedRateData)
	require.NoError(t, err)
	var cached CachedRateData
	require.NoError(t, json.Unmarshal(raw, &cached))
	require.False(t, cached.OverageEnabled)
	require.Equal(t, 3.0, cached.OverageSpent)
}

func TestPersistedFormat(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, sampleRateData()))

	raw, err := store.Load(ctx, credentials.KeyCachedRateData)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "rate_limited", fields["status"])
	require.Equal(t, float64(time.Date(2026, 10, 22, 8, 0, 0, 0, time.UTC).UnixMilli()), fields["weeklyResetsAt"])
	require.NotContains(t, fields, "weeklySonnetResetsAt")
}

func TestLoadUnknownStatus(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, credentials.KeyCachedRateData, []byte(`{"fetchedAt":0}`)))

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, usage.StatusUnknown, loaded.Status)
}

func TestStoreFailures(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	store.Err = errors.New("disk full")

	require.ErrorContains(t, cache.Save(ctx, sampleRateData()), "disk full")

	_, err := cache.Load(ctx)
	require.ErrorContains(t, err, "disk full")
}

func TestLoadCorruptRecord(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, credentials.KeyCachedRateData, []byte(`not json`)))

	_, err := cache.Load(ctx)
	require.ErrorContains(t, err, "decoding cached rate data")
}
