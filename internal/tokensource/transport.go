package tokensource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// codeExchangeTransport converts oauth2's form-encoded code exchange requests
// to the JSON format required by Anthropic's token endpoint, and rejects any
// response other than 200 OK.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type codeExchangeTransport struct {
	base http.RoundTripper
}

// Compile-time check that codeExchangeTransport implements http.RoundTripper.
var _ http.RoundTripper = (*codeExchangeTransport)(nil)

// RoundTrip intercepts token requests and converts them from form-encoded to JSON.
func (t *codeExchangeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	// Unlike passthrough patterns, we don't forward the original body to the next RoundTripper.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	// Convert all form data to JSON format
	jsonData := make(map[string]string, len(formData))
	for key, values := range formData {
		jsonData[key] = values[0] // OAuth2 spec defines single-value parameters
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")

	resp, err := t.base.RoundTrip(newReq)
	if err != nil {
		return nil, err
	}

	// oauth2 accepts any 2xx; errors outside 2xx are reported by oauth2 itself
	if resp.StatusCode != http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_ = resp.Body.Close()
		return nil, &ExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	return resp, nil
}

// statusOKTransport passes requests through unchanged and turns any response
// other than 200 OK into an error, so oauth2 never decodes a token from it.
type statusOKTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = (*statusOKTransport)(nil)

func (t *statusOKTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("token endpoint returned %s", resp.Status)
	}
	return resp, nil
}
