package login

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener shows a URL to the user. Implementations must not block on the user.
type Opener func(url string) error

// OpenBrowser opens url in the platform's default browser without waiting for it.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	default:
		return fmt.Errorf("opening a browser not supported on %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	// Reap the child without blocking the caller
	go func() { _ = cmd.Wait() }()
	return nil
}
