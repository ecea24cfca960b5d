package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // output raw JSON per event
}

// wsURL turns the daemon base URL into its /ws endpoint.
func wsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Watch connects to the daemon's WebSocket endpoint and streams events to
// the terminal in a human-readable format until interrupted.
func Watch(baseURL string, opts WatchOptions) error {
	target, err := wsURL(baseURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "  %s %s\n", colorize(green, "connected"), colorize(dim, target))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(stdout, "  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(stdout, rule(50))
		fmt.Fprintln(stdout)
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !wanted(filterSet, msg) {
				continue
			}
			if opts.JSON {
				fmt.Fprintln(stdout, string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return nil
	case <-done:
		return nil
	}
}

// wanted reports whether an event passes the type filter. Undecodable
// messages always pass.
func wanted(filter map[string]bool, msg []byte) bool {
	if len(filter) == 0 {
		return true
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return true
	}
	return filter[ev.Type]
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(raw []byte) {
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(stdout, "  %s\n", string(raw))
		return
	}

	evType, _ := ev["type"].(string)
	ts := formatEventTime(ev)

	switch evType {
	case "heartbeat":
		state, _ := ev["state"].(string)
		uptime, _ := ev["uptime_seconds"].(float64)
		lookups, _ := ev["lookups"].(float64)
		fmt.Fprintf(stdout, "  %s %s  %s  up %s  %s\n",
			colorize(dim, ts),
			colorize(dim, "heartbeat"),
			colorize(stateColor(state), state),
			colorize(dim, formatDuration(time.Duration(uptime)*time.Second)),
			colorize(dim, fmt.Sprintf("%d lookups", int64(lookups))),
		)

	case "state":
		from, _ := ev["from"].(string)
		to, _ := ev["to"].(string)
		fmt.Fprintf(stdout, "  %s %s  %s %s %s\n",
			colorize(dim, ts),
			colorize(bold, "STATE"),
			colorize(stateColor(from), from),
			colorize(dim, "->"),
			colorize(stateColor(to), to),
		)

	case "log":
		level, _ := ev["level"].(string)
		message, _ := ev["message"].(string)
		component, _ := ev["component"].(string)
		src := ""
		if component != "" {
			src = colorize(dim, "["+component+"] ")
		}
		fmt.Fprintf(stdout, "  %s %s  %s%s\n", colorize(dim, ts), formatLogLevel(level), src, message)

	case "lookup":
		id, _ := ev["identifier"].(string)
		outcome, _ := ev["outcome"].(string)
		ms, _ := ev["duration_ms"].(float64)
		result := outcome
		if mag, ok := ev["phot_bp_mean_mag"].(float64); ok {
			result = fmt.Sprintf("BP %.4f", mag)
		}
		fmt.Fprintf(stdout, "  %s %s  %s  %s  %s\n",
			colorize(dim, ts),
			colorize(cyan, padRight("lookup", 9)),
			id,
			colorize(outcomeColor(outcome), result),
			colorize(dim, (time.Duration(ms)*time.Millisecond).String()),
		)

	case "noise":
		ppm, _ := ev["hourly_ppm"].(float64)
		moon, _ := ev["moon"].(float64)
		airmass, _ := ev["airmass"].(float64)
		mag, _ := ev["mag"].(float64)
		fmt.Fprintf(stdout, "  %s %s  %.1f ppm/h  %s\n",
			colorize(dim, ts),
			colorize(cyan, padRight("noise", 9)),
			ppm,
			colorize(dim, fmt.Sprintf("mag %g, airmass %g, moon %g%%", mag, airmass, moon)),
		)

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Fprintf(stdout, "  %s\n", string(raw))
			return
		}
		fmt.Fprintf(stdout, "  %s\n", string(pretty))
	}
}

// formatEventTime extracts and shortens the timestamp from an event.
func formatEventTime(ev map[string]any) string {
	tsRaw, ok := ev["ts"].(string)
	if !ok {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		if len(tsRaw) > 10 {
			return tsRaw[:10]
		}
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
