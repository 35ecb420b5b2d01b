package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// RenderFunc presents a fetch result. It runs on the runner's goroutine.
type RenderFunc func(ctx context.Context, result Result)

// Runner fetches, caches and renders on a fixed interval and on demand.
type Runner struct {
	service  *Service
	interval time.Duration
	clock    clockwork.Clock
	render   RenderFunc

	trigger chan struct{}
}

// NewRunner creates a Runner. A nil clock uses the real clock.
func NewRunner(service *Service, interval time.Duration, clock clockwork.Clock, render RenderFunc) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if render == nil {
		render = func(context.Context, Result) {}
	}
	return &Runner{
		service:  service,
		interval: interval,
		clock:    clock,
		render:   render,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests an immediate pass. Requests arriving while one is already
// pending are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run performs a pass right away and then on every tick or trigger until ctx
// is cancelled. A manual pass does not reset the schedule.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "watching usage", "interval", r.interval)
	r.pass(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			r.pass(ctx, "schedule")
		case <-r.trigger:
			r.pass(ctx, "trigger")
		}
	}
}

func (r *Runner) pass(ctx context.Context, reason string) {
	result := r.service.Fetch(ctx)
	if ctx.Err() != nil {
		return
	}

	slog.DebugContext(ctx, "usage pass complete",
		"reason", reason,
		"status", result.Data.Status,
		"from_cache", result.FromCache,
	)
	r.render(ctx, result)
}
