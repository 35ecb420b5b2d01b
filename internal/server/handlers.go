package server

import (
	"context"
	"log/slog"
	"net/http"
)

type handlers struct {
	backend Backend
}

// usage serves the latest snapshot. Failure states are regular snapshots, so
// the response is 200 unless the request itself is broken.
func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	snap := h.backend.Usage(r.Context())
	logSnapshot(r.Context(), snap)
	writeJSON(r.Context(), w, newUsageResponse(snap), http.StatusOK)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	snap := h.backend.Refresh(r.Context())
	logSnapshot(r.Context(), snap)
	writeJSON(r.Context(), w, newUsageResponse(snap), http.StatusOK)
}

func logSnapshot(ctx context.Context, snap Snapshot) {
	logAttrs(ctx,
		slog.String("usage.live_status", string(snap.Live)),
		slog.Bool("usage.from_cache", snap.FromCache),
	)
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	loggedIn, info := h.backend.Session(r.Context())
	// Profile fields identify the account and stay out of the log
	logAttrs(r.Context(), slog.Bool("session.logged_in", loggedIn))

	resp := SessionResponse{LoggedIn: loggedIn}
	if loggedIn && info != nil {
		resp.Email = info.Email
		resp.DisplayName = info.DisplayName
		resp.OrganizationName = info.OrganizationName
		resp.OrganizationType = info.OrganizationType
		if !info.FetchedAt.IsZero() {
			fetchedAt := info.FetchedAt
			resp.ProfileFetchedAt = &fetchedAt
		}
	}

	writeJSON(r.Context(), w, resp, http.StatusOK)
}
