// Package server exposes usage snapshots over a loopback HTTP JSON API for
// widgets and status bars.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/usage"
)

// Snapshot is a usage result as served to clients.
type Snapshot struct {
	Usage     usage.RateData `json:"usage"`
	FromCache bool           `json:"from_cache"`
	Live      usage.Status   `json:"live_status"`
}

// Backend provides the data the server exposes.
type Backend interface {
	// Usage returns the most recent snapshot without forcing a fetch.
	Usage(ctx context.Context) Snapshot
	// Refresh fetches live usage.
	Refresh(ctx context.Context) Snapshot
	// Session returns whether the user is logged in and the stored profile.
	Session(ctx context.Context) (bool, *credentials.UserInfo)
}

// Server is the HTTP server.
type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server over backend that logs requests to the default logger.
func New(backend Backend) (*Server, error) {
	return newServer(backend, slog.Default())
}

func newServer(backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("missing backend")
	}

	h := &handlers{backend: backend}

	middlewares := []func(http.Handler) http.Handler{
		TraceContext,
		Logging(logger),
		Recovery,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /v1/usage", applyMiddlewares(http.HandlerFunc(h.usage), middlewares...))
	mux.Handle("POST /v1/usage/refresh", applyMiddlewares(http.HandlerFunc(h.refresh), middlewares...))
	mux.Handle("GET /v1/session", applyMiddlewares(http.HandlerFunc(h.session), middlewares...))

	return &Server{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Minute, // A refresh may wait on the token and usage endpoints
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
