package login

import (
	"errors"
	"net/url"
	"strings"
)

// ErrEmptyCode is returned when the pasted input contains no authorization code.
var ErrEmptyCode = errors.New("empty authorization code")

// ParseCode extracts the authorization code from what the user pasted after
// authorizing: either the bare code or the full callback URL.
//
// Anything after '#' is dropped. The callback page shows "code#state", so the
// fragment is never part of the code.
func ParseCode(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if i := strings.IndexByte(trimmed, '#'); i >= 0 {
		trimmed = strings.TrimSpace(trimmed[:i])
	}

	code := trimmed
	if strings.Contains(trimmed, "code=") {
		// Full callback URL or a bare "code=...&state=..." query
		query := trimmed
		if u, err := url.Parse(trimmed); err == nil && u.RawQuery != "" {
			query = u.RawQuery
		}
		if values, err := url.ParseQuery(query); err == nil {
			code = values.Get("code")
		}
	}

	if code == "" {
		return "", ErrEmptyCode
	}
	return code, nil
}
