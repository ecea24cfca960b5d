// Package telemetry defines the typed event structs that photometryd
// broadcasts to WebSocket clients.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventLog       EventType = "log"
	EventLookup    EventType = "lookup"
	EventNoise     EventType = "noise"
)

// Component is stamped on every event the daemon emits.
const Component = "photometryd"

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewEvent returns an envelope of type t stamped with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, TS: NowTS(), Component: Component}
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Lookups       int64  `json:"lookups"`
}

// StateTransition is emitted whenever the daemon moves between operating
// states (e.g. BOOTING -> IDLE).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Lookup reports a finished magnitude lookup. Outcome is "ok" or the failure
// class; BPMag is only set on success.
type Lookup struct {
	Event
	Identifier string   `json:"identifier"`
	GaiaID     string   `json:"gaia_id,omitempty"`
	BPMag      *float64 `json:"phot_bp_mean_mag,omitempty"`
	Outcome    string   `json:"outcome"`
	DurationMS int64    `json:"duration_ms"`
}

// Noise reports a served noise estimate.
type Noise struct {
	Event
	MoonPercent      float64 `json:"moon"`
	MeanCubedAirmass float64 `json:"airmass"`
	Magnitude        float64 `json:"mag"`
	Exposure         float64 `json:"exposure"`
	HourlyPPM        float64 `json:"hourly_ppm"`
}
