package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/resolve"
	"github.com/large-farva/photometry-kit/internal/telemetry"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "photometry-kit",
		"state":          a.State(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"lookups":        a.lookups.Load(),
		"in_flight":      a.inFlight(),
		"ws_clients":     a.wsHub.Clients(),
		"simbad_url":     a.cfg.Simbad.URL,
		"gaia_url":       a.cfg.Gaia.URL,
		"instrument":     a.instrument.Name,
	})
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg)
}

// ---------------------------------------------------------------------------
// Magnitude lookups
// ---------------------------------------------------------------------------

func (a *App) handleBPMag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "id parameter required", http.StatusBadRequest)
		return
	}

	a.beginLookup()
	start := time.Now()
	res, err := a.resolver.Lookup(r.Context(), id)
	a.endLookup()

	outcome := resolve.Outcome(err)
	a.lookups.Add(1)
	a.metrics.ObserveLookup(outcome, start)

	ev := telemetry.Lookup{
		Event:      telemetry.NewEvent(telemetry.EventLookup),
		Identifier: id,
		GaiaID:     res.GaiaID,
		Outcome:    outcome,
		DurationMS: time.Since(start).Milliseconds(),
	}

	if err != nil {
		a.log.Warn("lookup failed", "id", id, "outcome", outcome, "err", err)
		a.emitLog(log.WarnLevel, fmt.Sprintf("lookup %q failed: %v", id, err))
		a.wsHub.BroadcastJSON(ev)
		writeJSON(w, lookupStatus(err), map[string]any{
			"ok":         false,
			"identifier": id,
			"outcome":    outcome,
			"error":      err.Error(),
		})
		return
	}

	mag := res.BPMag
	ev.BPMag = &mag
	a.wsHub.BroadcastJSON(ev)
	a.log.Info("lookup", "id", id, "gaia_id", res.GaiaID, "bp_mag", res.BPMag)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"identifier":       res.Identifier,
		"gaia_id":          res.GaiaID,
		"phot_bp_mean_mag": res.BPMag,
		"cross_matched":    res.CrossMatched,
	})
}

// lookupStatus maps a resolver failure onto an HTTP status: objects that do
// not resolve are 404, upstream trouble is 502.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, resolve.ErrNotCatalogMember), errors.Is(err, resolve.ErrEmptyResult):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// ---------------------------------------------------------------------------
// Noise estimates
// ---------------------------------------------------------------------------

func (a *App) handleNoise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	var c noise.Conditions
	var err error
	if c.MoonPercent, err = floatParam(q.Get("moon"), "moon"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.MeanCubedAirmass, err = floatParam(q.Get("airmass"), "airmass"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.Magnitude, err = floatParam(q.Get("mag"), "mag"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.Exposure = noise.DefaultExposure
	if s := q.Get("exposure"); s != "" {
		if c.Exposure, err = floatParam(s, "exposure"); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if c.Exposure <= 0 {
			jsonError(w, "exposure must be positive", http.StatusBadRequest)
			return
		}
	}

	b := a.instrument.Breakdown(c)
	if math.IsNaN(b.HourlyPPM) || math.IsInf(b.HourlyPPM, 0) {
		jsonError(w, "estimate is not finite for these conditions", http.StatusUnprocessableEntity)
		return
	}

	a.metrics.ObserveEstimate()
	a.wsHub.BroadcastJSON(telemetry.Noise{
		Event:            telemetry.NewEvent(telemetry.EventNoise),
		MoonPercent:      c.MoonPercent,
		MeanCubedAirmass: c.MeanCubedAirmass,
		Magnitude:        c.Magnitude,
		Exposure:         c.Exposure,
		HourlyPPM:        b.HourlyPPM,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": a.instrument.Name,
		"conditions": c,
		"breakdown":  b,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func floatParam(s, name string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s parameter required", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number: %q", name, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: must be finite: %q", name, s)
	}
	return v, nil
}

// writeJSON encodes v before writing the header. An unencodable value is
// answered with a 500.
func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"ok": false, "error": "response not encodable: " + err.Error()})
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]any{
		"ok":    false,
		"error": msg,
	})
}
