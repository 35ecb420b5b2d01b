package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/ratecache"
	"github.com/florianilch/ratemeter/internal/securestore"
	"github.com/florianilch/ratemeter/internal/usage"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeTokens struct {
	token string
	ok    bool
}

func (f fakeTokens) UsableToken(context.Context) (string, bool) {
	return f.token, f.ok
}

type fakeFetcher struct {
	mu sync.Mutex

	data       usage.RateData
	profile    *credentials.UserInfo
	profileErr error
	onFetch    func()

	usageCalls   int
	profileCalls int
	tokens       []string
}

func (f *fakeFetcher) FetchUsage(_ context.Context, token string) usage.RateData {
	f.mu.Lock()
	f.usageCalls++
	f.tokens = append(f.tokens, token)
	data, hook := f.data, f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return data
}

func (f *fakeFetcher) FetchProfile(context.Context, string) (*credentials.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profile, nil
}

type serviceFixture struct {
	service *Service
	store   *securestore.MemoryStore
	repo    *credentials.Repository
	cache   *ratecache.Cache
	fetcher *fakeFetcher
}

func newServiceFixture(t *testing.T, tokens TokenProvider) *serviceFixture {
	t.Helper()

	store := securestore.NewMemoryStore()
	repo, err := credentials.NewRepository(store)
	require.NoError(t, err)
	cache, err := ratecache.New(store)
	require.NoError(t, err)

	fetcher := &fakeFetcher{
		data:    usage.Placeholder(testNow),
		profile: &credentials.UserInfo{Email: "ada@example.com", FetchedAt: testNow},
	}
	service, err := NewService(repo, tokens, fetcher, cache, clockwork.NewFakeClockAt(testNow))
	require.NoError(t, err)

	return &serviceFixture{service: service, store: store, repo: repo, cache: cache, fetcher: fetcher}
}

func (f *serviceFixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.repo.SaveTokens(context.Background(), "access", "refresh", testNow.Add(time.Hour)))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, fakeTokens{}, &fakeFetcher{}, nil, nil)
	require.Error(t, err)
}

func TestFetchNotLoggedIn(t *testing.T) {
	f := newServiceFixture(t, fakeTokens{})

	result := f.service.Fetch(context.Background())

	require.Equal(t, usage.StatusNotLoggedIn, result.Data.Status)
	require.Equal(t, usage.StatusNotLoggedIn, result.Live)
	require.False(t, result.FromCache)
	require.Zero(t, f.fetcher.usageCalls)
}

func TestFetchNotLoggedInServesLeftoverCache(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{})
	require.NoError(t, f.cache.Save(ctx, usage.Placeholder(testNow.Add(-time.Hour))))

	for _, result := range []Result{f.service.Fetch(ctx), f.service.Snapshot(ctx)} {
		require.True(t, result.FromCache)
		require.Equal(t, usage.StatusActive, result.Data.Status)
		require.Equal(t, usage.StatusNotLoggedIn, result.Live)
	}
}

func TestFetchSuccessCachesAndStoresProfileOnce(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)

	result := f.service.Fetch(ctx)
	require.Equal(t, usage.StatusActive, result.Data.Status)
	require.False(t, result.FromCache)
	require.Equal(t, []string{"access"}, f.fetcher.tokens)

	cached, err := f.cache.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.InDelta(t, 0.35, cached.Session.Utilization, 1e-9)

	info := f.service.UserInfo(ctx)
	require.NotNil(t, info)
	require.Equal(t, "ada@example.com", info.Email)

	f.service.Fetch(ctx)
	require.Equal(t, 1, f.fetcher.profileCalls)
}

func TestFetchProfileFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)
	f.fetcher.profileErr = errors.New("forbidden")

	result := f.service.Fetch(ctx)

	require.Equal(t, usage.StatusActive, result.Data.Status)
	require.Nil(t, f.service.UserInfo(ctx))
}

func TestFetchFailureFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)

	earlier := usage.Placeholder(testNow.Add(-30 * time.Minute))
	require.NoError(t, f.cache.Save(ctx, earlier))
	f.fetcher.data = usage.FailureSnapshot(usage.StatusUnauthorized, testNow)

	result := f.service.Fetch(ctx)

	require.True(t, result.FromCache)
	require.Equal(t, usage.StatusActive, result.Data.Status)
	require.Equal(t, usage.StatusUnauthorized, result.Live)
	require.True(t, result.Data.FetchedAt.Equal(earlier.FetchedAt))
}

func TestFetchFailureWithoutCache(t *testing.T) {
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)
	f.fetcher.data = usage.FailureSnapshot(usage.StatusError, testNow)

	result := f.service.Fetch(context.Background())

	require.False(t, result.FromCache)
	require.Equal(t, usage.StatusError, result.Data.Status)
	require.Equal(t, usage.StatusError, result.Live)
}

func TestFetchDiscardsResultAfterConcurrentLogout(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)
	f.fetcher.onFetch = func() {
		require.NoError(t, f.service.Logout(ctx))
	}

	result := f.service.Fetch(ctx)

	require.Equal(t, usage.StatusNotLoggedIn, result.Data.Status)
	cached, err := f.cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, cached)
	require.Zero(t, f.fetcher.profileCalls)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("not logged in", func(t *testing.T) {
		f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
		result := f.service.Snapshot(ctx)
		require.Equal(t, usage.StatusNotLoggedIn, result.Data.Status)
		require.Zero(t, f.fetcher.usageCalls)
	})

	t.Run("cached", func(t *testing.T) {
		f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
		f.login(t)
		require.NoError(t, f.cache.Save(ctx, usage.Placeholder(testNow.Add(-time.Minute))))

		result := f.service.Snapshot(ctx)
		require.True(t, result.FromCache)
		require.Equal(t, usage.StatusActive, result.Live)
		require.Zero(t, f.fetcher.usageCalls)
	})

	t.Run("nothing cached fetches", func(t *testing.T) {
		f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
		f.login(t)

		result := f.service.Snapshot(ctx)
		require.False(t, result.FromCache)
		require.Equal(t, 1, f.fetcher.usageCalls)
	})
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)
	f.service.Fetch(ctx)

	require.NoError(t, f.service.Logout(ctx))

	require.False(t, f.service.LoggedIn(ctx))
	require.Nil(t, f.service.UserInfo(ctx))
	cached, err := f.cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestLogoutReportsStoreFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, fakeTokens{})
	f.login(t)
	f.store.Err = errors.New("disk full")

	err := f.service.Logout(ctx)
	require.ErrorContains(t, err, "logout incomplete")
}

func TestToken(t *testing.T) {
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	token, ok := f.service.Token(context.Background())
	require.True(t, ok)
	require.Equal(t, "access", token)
}
