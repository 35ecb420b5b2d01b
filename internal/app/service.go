package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/ratecache"
	"github.com/florianilch/ratemeter/internal/tokensource"
	"github.com/florianilch/ratemeter/internal/usage"
)

// TokenProvider hands out a usable access token.
type TokenProvider interface {
	UsableToken(ctx context.Context) (string, bool)
}

// UsageFetcher calls the remote usage and profile endpoints.
type UsageFetcher interface {
	FetchUsage(ctx context.Context, token string) usage.RateData
	FetchProfile(ctx context.Context, token string) (*credentials.UserInfo, error)
}

var (
	_ TokenProvider = (*tokensource.Refresher)(nil)
	_ UsageFetcher  = (*usage.Client)(nil)
)

// Result is what a consumer renders.
type Result struct {
	Data usage.RateData `json:"usage" yaml:"usage"`
	// FromCache is set when Data is the last good snapshot standing in for a failed fetch.
	FromCache bool `json:"from_cache" yaml:"from_cache"`
	// Live is the status of the fetch that produced this result. It differs
	// from Data.Status when a failure fell back to the cache.
	Live usage.Status `json:"live_status" yaml:"live_status"`
}

// Service ties token handling, fetching and caching together. One Service is
// built per process; processes share state only through the store.
type Service struct {
	repo    *credentials.Repository
	tokens  TokenProvider
	fetcher UsageFetcher
	cache   *ratecache.Cache
	clock   clockwork.Clock
}

// NewService creates a Service.
func NewService(repo *credentials.Repository, tokens TokenProvider, fetcher UsageFetcher, cache *ratecache.Cache, clock clockwork.Clock) (*Service, error) {
	if repo == nil || tokens == nil || fetcher == nil || cache == nil {
		return nil, errors.New("service requires repository, token provider, fetcher and cache")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, tokens: tokens, fetcher: fetcher, cache: cache, clock: clock}, nil
}

// Fetch performs a live fetch. Success updates the cache; a failure, including
// a missing login, is replaced by the cached snapshot when there is one.
func (s *Service) Fetch(ctx context.Context) Result {
	token, ok := s.tokens.UsableToken(ctx)
	if !ok {
		return s.fallback(ctx, usage.FailureSnapshot(usage.StatusNotLoggedIn, s.clock.Now()))
	}

	data := s.fetcher.FetchUsage(ctx, token)
	if data.Status.IsFailure() {
		return s.fallback(ctx, data)
	}

	// A logout during the fetch must not leave a snapshot behind
	if !s.LoggedIn(ctx) {
		slog.InfoContext(ctx, "logged out during fetch, discarding usage")
		data := usage.FailureSnapshot(usage.StatusNotLoggedIn, s.clock.Now())
		return Result{Data: data, Live: data.Status}
	}

	if err := s.cache.Save(ctx, data); err != nil {
		slog.WarnContext(ctx, "failed to cache usage", "error", err)
	}
	s.ensureProfile(ctx, token)

	return Result{Data: data, Live: data.Status}
}

func (s *Service) fallback(ctx context.Context, failed usage.RateData) Result {
	cached, err := s.cache.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load cached usage", "error", err)
	}
	if cached == nil {
		return Result{Data: failed, Live: failed.Status}
	}
	slog.InfoContext(ctx, "serving cached usage", "live_status", failed.Status, "fetched_at", cached.FetchedAt)
	return Result{Data: *cached, FromCache: true, Live: failed.Status}
}

// ensureProfile stores the account profile once per login. Failures are
// logged only; the profile is display-only.
func (s *Service) ensureProfile(ctx context.Context, token string) {
	info, err := s.repo.LoadUserInfo(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load user info", "error", err)
		return
	}
	if info != nil {
		return
	}

	info, err = s.fetcher.FetchProfile(ctx, token)
	if err != nil {
		slog.DebugContext(ctx, "profile unavailable", "error", err)
		return
	}
	if err := s.repo.SaveUserInfo(ctx, *info); err != nil {
		slog.WarnContext(ctx, "failed to save user info", "error", err)
	}
}

// Snapshot returns the cached snapshot if there is one, otherwise fetches.
func (s *Service) Snapshot(ctx context.Context) Result {
	if !s.LoggedIn(ctx) {
		return s.fallback(ctx, usage.FailureSnapshot(usage.StatusNotLoggedIn, s.clock.Now()))
	}

	cached, err := s.cache.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load cached usage", "error", err)
	}
	if cached != nil {
		return Result{Data: *cached, FromCache: true, Live: cached.Status}
	}
	return s.Fetch(ctx)
}

// Token returns a usable access token for other tools.
func (s *Service) Token(ctx context.Context) (string, bool) {
	return s.tokens.UsableToken(ctx)
}

// LoggedIn reports whether credentials are stored. Consumers re-check this
// before rendering since another process may have logged out.
func (s *Service) LoggedIn(ctx context.Context) bool {
	return s.repo.HasCredentials(ctx)
}

// UserInfo returns the stored profile, or nil.
func (s *Service) UserInfo(ctx context.Context) *credentials.UserInfo {
	info, err := s.repo.LoadUserInfo(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load user info", "error", err)
		return nil
	}
	return info
}

// Logout deletes credentials, cached usage and user info.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("logout incomplete: %w", err)
	}
	slog.InfoContext(ctx, "logged out")
	return nil
}
