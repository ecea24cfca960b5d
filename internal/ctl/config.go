package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/large-farva/photometry-kit/internal/config"
)

// Config fetches and displays the daemon's running configuration.
func Config(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var raw json.RawMessage
	if err := getJSON(baseURL, "/api/config", &raw); err != nil {
		return err
	}

	if jsonOutput {
		var v any
		_ = json.Unmarshal(raw, &v)
		return printJSON(v)
	}

	var cfg config.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  DAEMON CONFIGURATION"))
	fmt.Fprintln(stdout, rule(50))
	printConfig(cfg)
	fmt.Fprintln(stdout)

	return nil
}

func printConfig(cfg config.Config) {
	section := func(name string) {
		fmt.Fprintf(stdout, "\n  %s\n", colorize(bold, "["+name+"]"))
	}
	field := func(key string, val any) {
		fmt.Fprintf(stdout, "    %-20s %v\n", colorize(dim, key+":"), val)
	}

	section("logging")
	field("level", cfg.Logging.Level)

	section("server")
	field("bind", cfg.Server.Bind)

	section("simbad")
	field("url", cfg.Simbad.URL)
	field("timeout_seconds", cfg.Simbad.TimeoutSeconds)

	section("gaia")
	field("url", cfg.Gaia.URL)
	field("poll_interval_ms", cfg.Gaia.PollIntervalMS)
	field("max_poll_interval_ms", cfg.Gaia.MaxPollIntervalMS)

	section("image")
	field("offset", cfg.Image.Offset)
	field("output_name", cfg.Image.OutputName)

	in := cfg.Instrument
	section("instrument")
	field("name", in.Name)
	field("plate_scale", in.PlateScale)
	field("gain", in.Gain)
	field("read_noise", in.ReadNoise)
	field("dark_current", in.DarkCurrent)
	field("sky", fmt.Sprintf("%g / %g / %g", in.SkyLow, in.SkyMedium, in.SkyHigh))
	field("aperture", in.TelescopeAperture)
	field("observatory_height", in.ObservatoryHeight)
	field("zero_points", fmt.Sprintf("%g / %g / %g", in.ZeroPointLarge, in.ZeroPointMedium, in.ZeroPointSmall))
	field("readout_time", in.ReadoutTime)
}

// LocalConfig prints cfg, the configuration photctl itself loaded.
func LocalConfig(cfg config.Config, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(cfg)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  LOCAL CONFIGURATION"))
	fmt.Fprintln(stdout, rule(50))
	printConfig(cfg)
	fmt.Fprintln(stdout)
	return nil
}
