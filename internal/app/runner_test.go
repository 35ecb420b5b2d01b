package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRunnerPasses(t *testing.T) {
	f := newServiceFixture(t, fakeTokens{token: "access", ok: true})
	f.login(t)

	clock := clockwork.NewFakeClockAt(testNow)
	rendered := make(chan Result, 8)
	runner := NewRunner(f.service, 15*time.Minute, clock, func(_ context.Context, r Result) {
		rendered <- r
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	waitRender := func() Result {
		t.Helper()
		select {
		case r := <-rendered:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("no pass rendered")
			return Result{}
		}
	}

	// startup
	waitRender()

	clock.Advance(15 * time.Minute)
	waitRender()

	runner.Trigger()
	waitRender()

	require.Equal(t, 3, f.fetcher.usageCalls)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerTriggerCoalesces(t *testing.T) {
	runner := NewRunner(nil, time.Minute, nil, nil)

	runner.Trigger()
	runner.Trigger()
	runner.Trigger()

	require.Len(t, runner.trigger, 1)
}
