// Package tokensource implements the OAuth2 Authorization Code + PKCE login
// against Anthropic Claude and keeps the persisted access token usable.
//
// Anthropic's OAuth2 implementation deviates from the standard in a way that
// requires custom handling:
//   - The authorization code exchange uses a JSON-encoded request body and
//     carries the state parameter (standard OAuth2 uses form-encoding)
//
// Token refresh uses the standard form-encoded request.
//
// # Login
//
//	pkce := tokensource.GeneratePKCE()
//	state := tokensource.NewState()
//	url := authorizer.AuthorizationURL(pkce.Challenge, state)
//	// user authorizes in the browser and pastes back the code
//	cred, err := authorizer.ExchangeCode(ctx, code, pkce.Verifier, state)
//
// # Usable tokens
//
// Refresher.UsableToken returns the stored access token, refreshing it first
// when it has expired. Refresh failures are not reported: the old token is
// returned and the usage API decides whether it is still accepted.
package tokensource
