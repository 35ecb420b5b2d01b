package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/ratecache"
	"github.com/florianilch/ratemeter/internal/securestore"
	"github.com/florianilch/ratemeter/internal/server"
	"github.com/florianilch/ratemeter/internal/tokensource"
	"github.com/florianilch/ratemeter/internal/usage"
)

// App wires the store, token handling and usage fetching for one process.
type App struct {
	cfg   *Config
	clock clockwork.Clock

	store      securestore.Store
	repo       *credentials.Repository
	authorizer *tokensource.Authorizer
	service    *Service
}

// New creates a new App instance. The store is opened here; everything else
// defers I/O to first use.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Storage.NewStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	a, err := newApp(cfg, store, clockwork.NewRealClock())
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return a, nil
}

func newApp(cfg *Config, store securestore.Store, clock clockwork.Clock) (*App, error) {
	repo, err := credentials.NewRepository(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential repository: %w", err)
	}

	tokenOpts := []tokensource.Option{
		tokensource.WithEndpoint(oauth2.Endpoint{AuthURL: cfg.API.AuthURL, TokenURL: cfg.API.TokenURL}),
		tokensource.WithClock(clock),
	}
	authorizer, err := tokensource.NewAuthorizer(repo, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}
	refresher, err := tokensource.NewRefresher(repo, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token refresher: %w", err)
	}

	cache, err := ratecache.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate cache: %w", err)
	}

	client := usage.NewClient(usage.WithBaseURL(cfg.API.BaseURL), usage.WithClock(clock))

	service, err := NewService(repo, refresher, client, cache, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &App{
		cfg:        cfg,
		clock:      clock,
		store:      store,
		repo:       repo,
		authorizer: authorizer,
		service:    service,
	}, nil
}

// Service returns the usage service.
func (a *App) Service() *Service {
	return a.service
}

// Authorizer returns the login code exchanger.
func (a *App) Authorizer() *tokensource.Authorizer {
	return a.authorizer
}

// Repository returns the credential repository.
func (a *App) Repository() *credentials.Repository {
	return a.repo
}

// Close releases the store.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func closeStore(store securestore.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

// Watch runs the periodic fetch-cache-render loop until ctx is cancelled.
// Each value on triggers requests an extra pass.
func (a *App) Watch(ctx context.Context, render RenderFunc, triggers <-chan os.Signal) error {
	runner := NewRunner(a.service, a.cfg.Watch.Interval, a.clock, render)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gCtx)
	})
	g.Go(func() error {
		forwardTriggers(gCtx, runner, triggers)
		return nil
	})
	return g.Wait()
}

func forwardTriggers(ctx context.Context, runner *Runner, triggers <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-triggers:
			if !ok {
				return
			}
			slog.InfoContext(ctx, "refresh requested", "signal", sig)
			runner.Trigger()
		}
	}
}

// Serve starts the HTTP surface together with the periodic runner and blocks
// until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Serve(ctx context.Context, triggers <-chan os.Signal) error {
	g, gCtx := errgroup.WithContext(ctx)

	backend := &serverBackend{service: a.service}
	runner := NewRunner(a.service, a.cfg.Watch.Interval, a.clock, backend.store)

	srv, err := server.New(backend)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting server", "address", address)
	srvErrCh, err := srv.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, srv.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-srvErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})
	g.Go(func() error {
		return runner.Run(gCtx)
	})
	g.Go(func() error {
		forwardTriggers(gCtx, runner, triggers)
		return nil
	})

	slog.InfoContext(gCtx, "application ready", "address", srv.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(ctx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// serverBackend serves the runner's latest result and falls back to the
// service when nothing has been fetched yet.
type serverBackend struct {
	service *Service
	latest  atomic.Pointer[Result]
}

var _ server.Backend = (*serverBackend)(nil)

func (b *serverBackend) store(_ context.Context, result Result) {
	b.latest.Store(&result)
}

func (b *serverBackend) Usage(ctx context.Context) server.Snapshot {
	// Another process may have logged out since the last pass
	if latest := b.latest.Load(); latest != nil && b.service.LoggedIn(ctx) {
		return toSnapshot(*latest)
	}
	return toSnapshot(b.service.Snapshot(ctx))
}

func (b *serverBackend) Refresh(ctx context.Context) server.Snapshot {
	result := b.service.Fetch(ctx)
	b.latest.Store(&result)
	return toSnapshot(result)
}

func (b *serverBackend) Session(ctx context.Context) (bool, *credentials.UserInfo) {
	if !b.service.LoggedIn(ctx) {
		return false, nil
	}
	return true, b.service.UserInfo(ctx)
}

func toSnapshot(r Result) server.Snapshot {
	return server.Snapshot{Usage: r.Data, FromCache: r.FromCache, Live: r.Live}
}
