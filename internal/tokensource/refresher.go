package tokensource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/ratemeter/internal/credentials"
)

// Refresher hands out a usable access token, refreshing the persisted
// credential when it has expired.
//
// Concurrent callers share a single in-flight refresh. Other processes are not
// coordinated with beyond re-reading the store right before refreshing.
type Refresher struct {
	repo       *credentials.Repository
	config     *oauth2.Config
	httpClient *http.Client
	opts       *options

	group singleflight.Group
}

// NewRefresher creates a Refresher over the credentials in repo.
func NewRefresher(repo *credentials.Repository, opts ...Option) (*Refresher, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing credential repository")
	}

	o := newOptions(opts)

	return &Refresher{
		repo:   repo,
		config: o.oauth2Config(),
		httpClient: &http.Client{
			Timeout: httpTimeout,
			// Refresh keeps oauth2's form encoding but only accepts 200
			Transport: &statusOKTransport{base: o.baseTransport},
		},
		opts: o,
	}, nil
}

// UsableToken returns an access token for API calls, or false if the user is
// not logged in. An expired token is refreshed first; when that isn't possible
// or fails, the stale token is returned and the API decides.
func (r *Refresher) UsableToken(ctx context.Context) (string, bool) {
	cred, err := r.repo.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to load credentials", "error", err)
		return "", false
	}
	if cred == nil {
		return "", false
	}

	if !r.expired(cred) {
		return cred.AccessToken, true
	}

	if !cred.HasRefreshToken() {
		slog.DebugContext(ctx, "access token expired without refresh token, using it as-is")
		return cred.AccessToken, true
	}

	v, _, _ := r.group.Do(credentials.KeyCredentials, func() (any, error) {
		return r.refresh(ctx), nil
	})
	token := v.(string)
	return token, token != ""
}

func (r *Refresher) expired(cred *credentials.Credential) bool {
	if cred.ExpiresAt == 0 {
		return false
	}
	return r.opts.clock.Now().UnixMilli() > cred.ExpiresAt
}

// refresh performs the refresh grant and persists the result. It returns the
// new token on success, otherwise the stored one, or "" after a concurrent logout.
func (r *Refresher) refresh(ctx context.Context) string {
	// Another process may have refreshed since the caller's read
	cred, err := r.repo.Load(ctx)
	if err != nil || cred == nil {
		slog.WarnContext(ctx, "credentials unavailable before refresh", "error", err)
		return ""
	}
	if !r.expired(cred) {
		slog.DebugContext(ctx, "credentials already refreshed elsewhere")
		return cred.AccessToken
	}
	if !cred.HasRefreshToken() {
		return cred.AccessToken
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	// Empty access token forces oauth2 to use the refresh grant
	token, err := r.config.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed, using stored access token", "error", err)
		return cred.AccessToken
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}

	refreshed := credentials.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    credentials.ExpiresAtMillis(expiresAt(token, r.opts.clock.Now())),
	}
	// A logout during the round trip must not be undone by this write
	if current, err := r.repo.Load(ctx); err == nil && current == nil {
		slog.InfoContext(ctx, "logged out during token refresh, discarding new token")
		return ""
	}

	if err := r.repo.Save(ctx, refreshed); err != nil {
		// The new token is still valid for this process; the next process will refresh again
		slog.ErrorContext(ctx, "failed to persist refreshed credentials", "error", err)
	}

	slog.InfoContext(ctx, "access token refreshed")
	return refreshed.AccessToken
}
