//go:build windows

package commands

import "os"

// refreshSignals returns a nil channel: Windows has no SIGUSR1.
func refreshSignals() (<-chan os.Signal, func()) {
	return nil, func() {}
}
