package tokensource

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

const (
	// ClientID is the public OAuth2 client identifier for Anthropic Claude.
	// This is a public client (no client secret) using PKCE for security.
	ClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	// RedirectURL is where the authorization server shows the code to paste back.
	RedirectURL = "https://console.anthropic.com/oauth/code/callback"

	// httpTimeout bounds token endpoint requests
	httpTimeout = 30 * time.Second
)

// Endpoint defines the OAuth2 endpoints for Anthropic Claude authentication.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://claude.ai/oauth/authorize", // for Claude Pro/Max
	TokenURL:  "https://console.anthropic.com/v1/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// scopes defines the required OAuth scopes for Anthropic Claude
var scopes = []string{"org:create_api_key", "user:profile", "user:inference"}

// Option configures an Authorizer or Refresher.
type Option func(*options)

type options struct {
	endpoint      oauth2.Endpoint
	baseTransport http.RoundTripper
	clock         clockwork.Clock
}

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithTransport sets a custom base transport for token endpoint requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.baseTransport = transport
	}
}

// WithClock sets the clock used for expiry decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		endpoint:      Endpoint,
		baseTransport: http.DefaultTransport,
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	// Public client: client_id always travels in the request body
	o.endpoint.AuthStyle = oauth2.AuthStyleInParams
	return o
}

func (o *options) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     ClientID,
		ClientSecret: "", // Empty for PKCE flow (public client)
		Endpoint:     o.endpoint,
		RedirectURL:  RedirectURL,
		Scopes:       scopes,
	}
}

// expiresAt converts a token endpoint response's expires_in into an absolute
// time. Zero means the server gave no lifetime.
func expiresAt(token *oauth2.Token, now time.Time) time.Time {
	if token.ExpiresIn > 0 {
		return now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return token.Expiry
}
