// Package ctl implements the commands behind photctl. The photometry tools
// run locally; status, health, version, config and watch talk to a running
// photometryd over HTTP and WebSocket.
package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// stdout receives all command output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// colorEnabled reports whether output goes to a terminal. When output is
// piped or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// stateColor returns the ANSI color code appropriate for a daemon state.
func stateColor(state string) string {
	if !colorEnabled() {
		return ""
	}
	switch state {
	case "IDLE":
		return green
	case "RESOLVING":
		return cyan
	case "BOOTING":
		return dim
	default:
		return white
	}
}

// outcomeColor colors a lookup outcome: green for a magnitude, yellow for
// objects that do not resolve, red for service trouble.
func outcomeColor(outcome string) string {
	switch outcome {
	case "ok":
		return green
	case "not_member", "empty":
		return yellow
	default:
		return red
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// rule is the dim underline printed below section headers.
func rule(width int) string {
	return colorize(dim, "  "+strings.Repeat("─", width))
}

// row prints one aligned label/value line.
func row(label string, value any) {
	fmt.Fprintf(stdout, "  %-14s %v\n", colorize(dim, label+":"), value)
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
