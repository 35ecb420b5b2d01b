// Package login drives the interactive side of the authorization code
// handshake: showing the authorization URL, reading back the pasted code
// and trading it for tokens.
package login

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/tokensource"
)

// State is a step of the login handshake.
type State int

const (
	StateIdle State = iota
	StateAwaitingCode
	StateExchanging
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateExchanging:
		return "exchanging"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// ErrNotAwaitingCode is returned by Submit outside of the code entry step.
var ErrNotAwaitingCode = errors.New("login not started or code already submitted")

// Exchanger is the part of tokensource.Authorizer the handshake needs.
type Exchanger interface {
	AuthorizationURL(challenge, state string) string
	ExchangeCode(ctx context.Context, code, verifier, state string) (*credentials.Credential, error)
}

var _ Exchanger = (*tokensource.Authorizer)(nil)

// Flow is a single login handshake. It is safe for concurrent use, but only
// one code exchange runs at a time. A failed exchange returns to code entry
// and is never retried automatically.
type Flow struct {
	exchanger Exchanger
	open      Opener

	mu         sync.Mutex
	state      State
	verifier   string
	oauthState string
}

// NewFlow creates an idle Flow. open may be nil if the caller only prints the URL.
func NewFlow(exchanger Exchanger, open Opener) *Flow {
	return &Flow{exchanger: exchanger, open: open}
}

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Start begins a fresh attempt with a new PKCE pair and state and returns the
// authorization URL. Opening the URL is fire-and-forget; a failure to open is
// only logged since the caller can still show the URL.
func (f *Flow) Start(ctx context.Context) string {
	pkce := tokensource.GeneratePKCE()
	state := tokensource.NewState()

	f.mu.Lock()
	f.state = StateAwaitingCode
	f.verifier = pkce.Verifier
	f.oauthState = state
	f.mu.Unlock()

	authURL := f.exchanger.AuthorizationURL(pkce.Challenge, state)
	slog.DebugContext(ctx, "login started", "pkce", pkce)

	if f.open != nil {
		if err := f.open(authURL); err != nil {
			slog.WarnContext(ctx, "failed to open browser", "error", err)
		}
	}

	return authURL
}

// Submit parses the pasted code or callback URL and exchanges it for tokens.
// Input that holds no code leaves the flow waiting for another attempt.
func (f *Flow) Submit(ctx context.Context, input string) (*credentials.Credential, error) {
	code, err := ParseCode(input)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.state != StateAwaitingCode {
		f.mu.Unlock()
		return nil, ErrNotAwaitingCode
	}
	f.state = StateExchanging
	verifier, state := f.verifier, f.oauthState
	f.mu.Unlock()

	cred, err := f.exchanger.ExchangeCode(ctx, code, verifier, state)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		// A cancelled attempt stays idle
		if f.state == StateExchanging {
			f.state = StateAwaitingCode
		}
		return nil, err
	}

	// The exchange already persisted the credential, so a Cancel that raced
	// with it cannot undo the login
	f.state = StateLoggedIn
	f.verifier, f.oauthState = "", ""
	return cred, nil
}

// Cancel abandons the attempt and forgets its PKCE verifier and state. An
// exchange already in flight still completes; if it succeeds the flow ends
// logged in.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateIdle
	f.verifier, f.oauthState = "", ""
}
