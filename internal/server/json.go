package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UsageResponse is the body of the usage endpoints.
type UsageResponse struct {
	Snapshot
	StatusLabel string `json:"status_label"`
	NeedsLogin  bool   `json:"needs_login"`
}

func newUsageResponse(s Snapshot) UsageResponse {
	return UsageResponse{
		Snapshot:    s,
		StatusLabel: s.Usage.Status.Label(),
		// A cached snapshot hides an expired session; surface it anyway
		NeedsLogin: s.Live.NeedsLogin() || s.Usage.Status.NeedsLogin(),
	}
}

// SessionResponse is the body of GET /v1/session.
type SessionResponse struct {
	LoggedIn         bool       `json:"logged_in"`
	Email            string     `json:"email,omitempty"`
	DisplayName      string     `json:"display_name,omitempty"`
	OrganizationName string     `json:"organization_name,omitempty"`
	OrganizationType string     `json:"organization_type,omitempty"`
	ProfileFetchedAt *time.Time `json:"profile_fetched_at,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeJSONError writes a JSON error response with the given status code.
func writeJSONError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	writeJSON(ctx, w, ErrorResponse{Error: message}, status)
}
