//go:build !windows

package commands

import (
	"os"
	"os/signal"
	"syscall"
)

// refreshSignals delivers SIGUSR1, which requests an immediate usage fetch.
func refreshSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return ch, func() { signal.Stop(ch) }
}
