package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jonboulle/clockwork"

	"github.com/florianilch/ratemeter/internal/credentials"
)

const (
	// DefaultBaseURL is the host serving the OAuth usage and profile endpoints.
	DefaultBaseURL = "https://api.anthropic.com"

	usagePath   = "api/oauth/usage"
	profilePath = "api/oauth/profile"

	apiVersion  = "2023-06-01"
	oauthBeta   = "oauth-2025-04-20"
	httpTimeout = 30 * time.Second
)

// Option configures a Client.
type Option func(*options)

type options struct {
	baseURL   string
	transport http.RoundTripper
	clock     clockwork.Clock
}

// WithBaseURL overrides the API host.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithTransport sets the HTTP transport for API calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Client calls the OAuth usage and profile endpoints with a bearer token.
type Client struct {
	api   anthropic.Client
	clock clockwork.Clock
}

// NewClient creates a Client. Retries are disabled: a failed fetch degrades
// to a snapshot and the next scheduled fetch is the retry.
func NewClient(opts ...Option) *Client {
	o := &options{
		baseURL:   DefaultBaseURL,
		transport: http.DefaultTransport,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}

	api := anthropic.NewClient(
		option.WithBaseURL(o.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: httpTimeout, Transport: o.transport}),
		option.WithMaxRetries(0),
		option.WithHeader("anthropic-version", apiVersion),
		option.WithHeader("anthropic-beta", oauthBeta),
		// OAuth endpoints reject requests that also carry an API key from the environment
		option.WithHeaderDel("x-api-key"),
	)

	return &Client{api: api, clock: o.clock}
}

// FetchUsage returns the current usage for token. 401 responses yield a
// StatusUnauthorized snapshot and every other failure a StatusError one.
func (c *Client) FetchUsage(ctx context.Context, token string) RateData {
	var resp usageResponse
	if err := c.get(ctx, usagePath, token, &resp); err != nil {
		now := c.clock.Now()
		if isUnauthorized(err) {
			slog.WarnContext(ctx, "usage request unauthorized")
			return FailureSnapshot(StatusUnauthorized, now)
		}
		slog.WarnContext(ctx, "usage request failed", "error", err)
		return FailureSnapshot(StatusError, now)
	}

	data := resp.toRateData(c.clock.Now())
	slog.DebugContext(ctx, "usage fetched",
		"status", data.Status,
		"session", data.Session.Utilization,
		"weekly", data.Weekly.Utilization,
	)
	return data
}

// FetchProfile returns the account and organization behind token.
func (c *Client) FetchProfile(ctx context.Context, token string) (*credentials.UserInfo, error) {
	var resp profileResponse
	if err := c.get(ctx, profilePath, token, &resp); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}

	displayName := resp.Account.DisplayName
	if displayName == "" {
		displayName = resp.Account.FullName
	}

	return &credentials.UserInfo{
		Email:            resp.Account.Email,
		DisplayName:      displayName,
		OrganizationName: resp.Organization.Name,
		OrganizationType: resp.Organization.OrganizationType,
		FetchedAt:        c.clock.Now(),
	}, nil
}

// get issues an authorized GET and decodes a 200 JSON body into v.
func (c *Client) get(ctx context.Context, path, token string, v any) error {
	var (
		body    []byte
		httpRes *http.Response
	)
	err := c.api.Get(ctx, path, nil, &body,
		option.WithAuthToken(token),
		option.WithResponseInto(&httpRes),
	)
	if err != nil {
		return err
	}
	if httpRes == nil || httpRes.StatusCode != http.StatusOK {
		status := 0
		if httpRes != nil {
			status = httpRes.StatusCode
		}
		return fmt.Errorf("unexpected status %d", status)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	var apiErr *anthropic.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
