package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Lookups       int64  `json:"lookups"`
	InFlight      int    `json:"in_flight"`
	WSClients     int    `json:"ws_clients"`
	SimbadURL     string `json:"simbad_url"`
	GaiaURL       string `json:"gaia_url"`
	Instrument    string `json:"instrument"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  PHOTOMETRYD STATUS"))
	fmt.Fprintln(stdout, rule(38))
	row("Daemon", s.Name)
	row("State", colorize(stateColor(s.State), s.State))
	row("Uptime", uptime)
	row("Lookups", fmt.Sprintf("%d (%d in flight)", s.Lookups, s.InFlight))
	row("Watchers", s.WSClients)
	row("Instrument", s.Instrument)
	row("SIMBAD", s.SimbadURL)
	row("Gaia", s.GaiaURL)
	row("Host", baseURL)
	fmt.Fprintln(stdout)

	return nil
}
