// Photctl is the command-line front end of the photometry kit. It runs the
// magnitude lookup, image offset and noise tools locally, and queries or
// watches a running photometryd over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/photometry-kit/internal/config"
	"github.com/large-farva/photometry-kit/internal/ctl"
	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/output"
	"github.com/large-farva/photometry-kit/internal/resolve"
)

func main() {
	var (
		host       = pflag.StringP("host", "H", "http://127.0.0.1:8090", "photometryd URL (e.g. http://192.168.8.1:8090)")
		configPath = pflag.StringP("config", "c", "", "Path to config TOML (default: built-in defaults)")
		jsonOut    = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		verbose    = pflag.BoolP("verbose", "v", false, "Debug logging, including catalog service progress")
		filter     = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter lookup,noise)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --mag are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: config:", err)
		os.Exit(1)
	}
	if err := output.SetupLogging(cfg.Logging.Level, *verbose); err != nil {
		output.Warn("unknown log level, using info", "level", cfg.Logging.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instrument := noise.FromConfig(cfg.Instrument)

	switch cmd {
	// ── Local tools ───────────────────────────────────────────────
	case "bp-mag":
		opts := ctl.BPMagOptions{JSON: *jsonOut}
		var remote bool
		bpFlags := pflag.NewFlagSet("bp-mag", pflag.ContinueOnError)
		bpFlags.BoolVar(&remote, "remote", false, "Resolve through photometryd instead of locally")
		_ = bpFlags.Parse(subArgs)
		opts.ID = strings.Join(bpFlags.Args(), " ")
		if opts.ID == "" {
			err = errors.New("bp-mag: identifier required")
			break
		}
		if remote {
			err = ctl.BPMagRemote(*host, opts)
		} else {
			err = ctl.BPMag(ctx, resolve.FromConfig(cfg), opts)
		}

	case "const-add":
		opts := ctl.ConstAddOptions{JSON: *jsonOut}
		caFlags := pflag.NewFlagSet("const-add", pflag.ContinueOnError)
		caFlags.Float64Var(&opts.Offset, "offset", cfg.Image.Offset, "Constant added to every pixel")
		caFlags.StringVar(&opts.OutputName, "output", cfg.Image.OutputName, "Output file name, written next to the input")
		_ = caFlags.Parse(subArgs)
		if caFlags.NArg() != 1 {
			err = errors.New("const-add: exactly one FITS file required")
			break
		}
		opts.Input = caFlags.Arg(0)
		err = ctl.ConstAdd(opts)

	case "noise":
		opts := ctl.NoiseOptions{Instrument: instrument, JSON: *jsonOut}
		var moon, airmass, mag, exposure float64
		var at string
		nFlags := pflag.NewFlagSet("noise", pflag.ContinueOnError)
		nFlags.Float64Var(&moon, "moon", 0, "Moon illumination in percent (default: from --at)")
		nFlags.Float64Var(&airmass, "airmass", 0, "Mean cubed airmass")
		nFlags.Float64SliceVar(&opts.Altitudes, "alt", nil, "Target altitudes in degrees, instead of --airmass")
		nFlags.Float64Var(&mag, "mag", 0, "Target magnitude")
		nFlags.Float64Var(&exposure, "exposure", noise.DefaultExposure, "Exposure time in seconds")
		nFlags.StringVar(&at, "at", "", "Observation time, RFC 3339 (default: now)")
		nFlags.BoolVar(&opts.Breakdown, "breakdown", false, "Show every noise term")
		_ = nFlags.Parse(subArgs)
		if nFlags.Changed("moon") {
			opts.Moon = &moon
		}
		if nFlags.Changed("airmass") {
			opts.Airmass = &airmass
		}
		if nFlags.Changed("mag") {
			opts.Mag = &mag
		}
		if nFlags.Changed("exposure") {
			opts.Exposure = &exposure
		}
		if opts.At, err = parseTime(at); err != nil {
			break
		}
		err = ctl.Noise(opts)

	case "airmass":
		opts := ctl.AirmassOptions{JSON: *jsonOut}
		amFlags := pflag.NewFlagSet("airmass", pflag.ContinueOnError)
		amFlags.Float64SliceVar(&opts.Altitudes, "alt", nil, "Target altitudes in degrees")
		_ = amFlags.Parse(subArgs)
		err = ctl.Airmass(opts)

	case "moon":
		opts := ctl.MoonOptions{Instrument: instrument, JSON: *jsonOut}
		var at string
		moonFlags := pflag.NewFlagSet("moon", pflag.ContinueOnError)
		moonFlags.StringVar(&at, "at", "", "Time, RFC 3339 (default: now)")
		_ = moonFlags.Parse(subArgs)
		if opts.At, err = parseTime(at); err != nil {
			break
		}
		err = ctl.Moon(opts)

	// ── Daemon queries ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		var local bool
		cfgFlags := pflag.NewFlagSet("config", pflag.ContinueOnError)
		cfgFlags.BoolVar(&local, "local", false, "Show the configuration photctl loaded instead of the daemon's")
		_ = cfgFlags.Parse(subArgs)
		if local {
			err = ctl.LocalConfig(cfg, *jsonOut)
		} else {
			err = ctl.Config(*host, *jsonOut)
		}

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

func usage() {
	fmt.Print(`
  photctl — photometry kit CLI

  USAGE
    photctl [flags] <command> [command-flags] [args]

  COMMANDS (tools)
    bp-mag ID       Gaia DR3 BP mean magnitude of a star or object
    const-add FILE  Add a constant to every pixel of a FITS image
    noise           Predicted hourly photometric noise in ppm
    airmass         Airmass and mean cubed airmass for target altitudes
    moon            Moon illumination and sky background band

  COMMANDS (daemon)
    status          Show daemon state, uptime and lookup counts
    health          Check daemon liveness
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8090)
    -c, --config PATH   Config TOML (default: built-in defaults)
        --json          Output raw JSON instead of formatted text
    -v, --verbose       Debug logging, including catalog service progress
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    bp-mag:
        --remote            Resolve through photometryd

    const-add:
        --offset N          Constant to add (default: 100)
        --output NAME       Output file name (default: const_added.fits)

    noise:
        --mag M             Target magnitude (required)
        --airmass X         Mean cubed airmass
        --alt DEG,...       Target altitudes, instead of --airmass
        --moon PCT          Moon illumination percent (default: from --at)
        --at TIME           Observation time, RFC 3339 (default: now)
        --exposure SECS     Exposure time (default: 30)
        --breakdown         Show every noise term

    airmass:
        --alt DEG,...       Target altitudes

    moon:
        --at TIME           Time, RFC 3339 (default: now)

    config:
        --local             Show photctl's own configuration

  EXAMPLES
    photctl bp-mag "Gaia DR3 4472832130942575872"
    photctl bp-mag "Barnard's star"
    photctl --json bp-mag --remote HD 189733
    photctl const-add frame.fits
    photctl const-add --offset 250 --output shifted.fits frame.fits
    photctl noise --moon 10 --airmass 1.2 --mag 12
    photctl noise --alt 62,55,48 --at 2026-08-14T02:00:00Z --mag 11.3 --breakdown
    photctl airmass --alt 90,45,30
    photctl moon --at 2026-08-14T02:00:00Z
    photctl status
    photctl --host http://obs-pc:8090 watch --filter lookup

`)
}
