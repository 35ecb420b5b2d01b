// Package render turns usage results into terminal text, JSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/florianilch/ratemeter/internal/app"
	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/usage"
)

// Format selects the output representation.
type Format string

const (
	FormatAuto  Format = "auto" // color on a terminal, plain otherwise
	FormatColor Format = "color"
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatAuto, FormatColor, FormatPlain, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatAuto, nil
	default:
		return "", fmt.Errorf("unknown output format %q (auto|color|plain|json|yaml)", s)
	}
}

const barWidth = 20

const (
	red    = "\033[31m"
	yellow = "\033[33m"
	green  = "\033[32m"
	dim    = "\033[2m"
	reset  = "\033[0m"
)

// Output is everything a renderer shows.
type Output struct {
	app.Result `yaml:",inline"`
	User       *credentials.UserInfo `json:"user,omitempty" yaml:"user,omitempty"`
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Write renders out to w in format, with relative times computed from now.
func Write(w io.Writer, format Format, out Output, now time.Time) error {
	if format == FormatAuto {
		format = FormatPlain
		if IsTerminal(w) {
			format = FormatColor
		}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	case FormatPlain:
		_, err := fmt.Fprintln(w, Plain(out, now))
		return err
	case FormatColor:
		_, err := io.WriteString(w, Color(out, now))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Plain renders a single uncolored line.
func Plain(out Output, now time.Time) string {
	data := out.Data
	if data.Status.IsFailure() && !out.FromCache {
		return "status: " + data.Status.Label() + hint(out)
	}

	parts := []string{
		category("5h", data.Session, now),
		category("7d", data.Weekly, now),
		category("7d sonnet", data.WeeklySonnet, now),
	}
	if data.Overage.IsEnabled {
		parts = append(parts, fmt.Sprintf("extra: %s/%s", data.Overage.Spent, data.Overage.Limit))
	}
	line := strings.Join(parts, "  ") + "  status: " + data.Status.Label()
	if out.FromCache {
		line += fmt.Sprintf(" (cached %s ago)", FormatDuration(now.Sub(data.FetchedAt)))
	}
	return line + hint(out)
}

func category(name string, c usage.CategoryData, now time.Time) string {
	s := fmt.Sprintf("%s: %.0f%%", name, c.Utilization*100)
	if c.ResetsAt != nil {
		s += fmt.Sprintf(" (resets %s)", FormatDuration(c.ResetsAt.Sub(now)))
	}
	return s
}

// Color renders a multi-line block with bars for a terminal.
func Color(out Output, now time.Time) string {
	data := out.Data
	var b strings.Builder

	header := "ratemeter  " + statusColor(data.Status) + data.Status.Label() + reset
	if out.User != nil && out.User.Email != "" {
		header += "  " + dim + out.User.Email + reset
	}
	b.WriteString(header + "\n")

	if data.Status.IsFailure() && !out.FromCache {
		b.WriteString("  " + strings.TrimPrefix(hint(out), "  ") + "\n")
		return b.String()
	}

	row := func(label string, c usage.CategoryData) {
		fmt.Fprintf(&b, "  %-9s %s%s%s %3.0f%%", label, barColor(c.Utilization), Bar(c.DisplayFraction()), reset, c.Utilization*100)
		if c.ResetsAt != nil {
			fmt.Fprintf(&b, "  resets in %s", FormatDuration(c.ResetsAt.Sub(now)))
		}
		b.WriteString("\n")
	}
	row("5h", data.Session)
	row("7d", data.Weekly)
	row("7d sonnet", data.WeeklySonnet)

	if data.Overage.IsEnabled {
		o := data.Overage
		fmt.Fprintf(&b, "  %-9s %s%s%s %s / %s\n", "extra", barColor(o.Utilization), Bar(min(max(o.Utilization, 0), 1)), reset, o.Spent, o.Limit)
	}

	updated := fmt.Sprintf("  %supdated %s ago", dim, FormatDuration(now.Sub(data.FetchedAt)))
	if out.FromCache {
		updated += " (cached, live: " + out.Live.Label() + ")"
	}
	b.WriteString(updated + reset + "\n")

	if h := hint(out); h != "" {
		b.WriteString("  " + strings.TrimPrefix(h, "  ") + "\n")
	}
	return b.String()
}

func hint(out Output) string {
	switch {
	case out.Live.NeedsLogin() || out.Data.Status.NeedsLogin():
		return "  run `ratemeter login` to sign in"
	case out.Live == usage.StatusError || out.Data.Status == usage.StatusError:
		return "  fetch failed, retry with `ratemeter status --refresh`"
	default:
		return ""
	}
}

// Bar draws a fixed-width progress bar for a fraction in [0, 1].
func Bar(fraction float64) string {
	filled := int(math.Round(fraction * barWidth))
	filled = min(max(filled, 0), barWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func barColor(utilization float64) string {
	switch {
	case utilization >= 1:
		return red
	case utilization >= 0.8:
		return yellow
	default:
		return green
	}
}

func statusColor(s usage.Status) string {
	switch s {
	case usage.StatusActive:
		return green
	case usage.StatusWarning:
		return yellow
	case usage.StatusRateLimited, usage.StatusUnauthorized, usage.StatusError:
		return red
	default:
		return dim
	}
}

// FormatDuration renders d compactly: "3d4h", "2h05m", "7m", or "now" when
// it has already passed.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
