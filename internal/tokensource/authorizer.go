package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/florianilch/ratemeter/internal/credentials"
)

// ExchangeError reports a failed authorization code exchange: a rejected
// code/verifier/state, a network failure, a status other than 200 or an
// undecodable response body.
type ExchangeError struct {
	// Status is the HTTP status code, or 0 if no response was received.
	Status int
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Authorizer builds authorization URLs and exchanges authorization codes for tokens.
type Authorizer struct {
	repo       *credentials.Repository
	config     *oauth2.Config
	httpClient *http.Client
	opts       *options
}

// NewAuthorizer creates an Authorizer that persists exchanged tokens in repo.
func NewAuthorizer(repo *credentials.Repository, opts ...Option) (*Authorizer, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing credential repository")
	}

	o := newOptions(opts)

	return &Authorizer{
		repo:   repo,
		config: o.oauth2Config(),
		// HTTP client with JSON transport for Anthropic (wraps provided or default transport for connection pooling)
		httpClient: &http.Client{
			Timeout:   httpTimeout,
			Transport: &codeExchangeTransport{base: o.baseTransport},
		},
		opts: o,
	}, nil
}

// AuthorizationURL returns the URL the user opens to authorize this client.
// state must be fresh per attempt and is echoed back by the server.
func (a *Authorizer) AuthorizationURL(challenge, state string) string {
	return a.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code", "true"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode trades an authorization code for tokens and persists them.
// Any failure is returned as *ExchangeError.
func (a *Authorizer) ExchangeCode(ctx context.Context, code, verifier, state string) (*credentials.Credential, error) {
	if code == "" {
		return nil, &ExchangeError{Err: errors.New("empty authorization code")}
	}

	slog.DebugContext(ctx, "exchanging authorization code", "code", Redact(code), "verifier", Redact(verifier))

	// oauth2 package injects custom HTTP clients via context (oauth2.HTTPClient key)
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	token, err := a.config.Exchange(oauthCtx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("state", state),
	)
	if err != nil {
		return nil, toExchangeError(err)
	}

	cred := credentials.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    credentials.ExpiresAtMillis(expiresAt(token, a.opts.clock.Now())),
	}
	if err := a.repo.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("persisting credentials: %w", err)
	}

	slog.InfoContext(ctx, "authorization code exchanged", "has_refresh_token", cred.HasRefreshToken())
	return &cred, nil
}

func toExchangeError(err error) *ExchangeError {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &ExchangeError{Status: retrieveErr.Response.StatusCode, Err: err}
	}
	return &ExchangeError{Err: err}
}
