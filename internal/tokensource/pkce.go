package tokensource

import (
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// PKCE is a single-use verifier/challenge pair for one authorization attempt.
type PKCE struct {
	// Verifier is 32 random bytes, base64url-encoded without padding.
	Verifier string
	// Challenge is base64url(SHA-256(Verifier)) without padding, computed over
	// the encoded verifier string.
	Challenge string
}

// GeneratePKCE returns a fresh verifier/challenge pair.
func GeneratePKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// LogValue implements slog.LogValuer so a PKCE pair is never logged in cleartext.
func (p PKCE) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("verifier", Redact(p.Verifier)),
		slog.String("challenge", Redact(p.Challenge)),
	)
}

// NewState returns a fresh random value for the OAuth state parameter.
func NewState() string {
	return uuid.NewString()
}

// redactPrefix is how much of a secret may appear in logs
const redactPrefix = 8

// Redact truncates a secret to a short prefix for logging.
func Redact(secret string) string {
	if len(secret) <= redactPrefix {
		return "..."
	}
	return secret[:redactPrefix] + "..."
}
