package ctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/sky"
)

// NoiseOptions controls the noise command. Moon and Airmass are optional:
// a nil Moon is derived from the lunar phase at At (now when zero), and a
// nil Airmass from the target altitudes in Altitudes.
type NoiseOptions struct {
	Instrument noise.Instrument
	Moon       *float64
	At         time.Time
	Airmass    *float64
	Altitudes  []float64 // degrees
	Mag        *float64
	Exposure   *float64 // s; nil means noise.DefaultExposure
	Breakdown  bool
	JSON       bool
}

// conditions resolves opts into model inputs.
func (opts NoiseOptions) conditions() (noise.Conditions, error) {
	if opts.Mag == nil {
		return noise.Conditions{}, errors.New("--mag is required")
	}

	var moon float64
	if opts.Moon != nil {
		moon = *opts.Moon
	} else {
		at := opts.At
		if at.IsZero() {
			at = time.Now()
		}
		moon = sky.MoonIllumination(at)
	}

	var airmass float64
	switch {
	case opts.Airmass != nil:
		airmass = *opts.Airmass
	case len(opts.Altitudes) > 0:
		airmass = sky.MeanCubedAirmassDeg(opts.Altitudes)
	default:
		return noise.Conditions{}, errors.New("one of --airmass or --alt is required")
	}

	c := noise.NewConditions(moon, airmass, *opts.Mag)
	if opts.Exposure != nil {
		c = c.WithExposure(*opts.Exposure)
	}
	return c, nil
}

// Noise evaluates the noise model and prints the hourly noise, optionally
// with every intermediate term.
func Noise(opts NoiseOptions) error {
	c, err := opts.conditions()
	if err != nil {
		return err
	}
	b := opts.Instrument.Breakdown(c)

	if opts.JSON {
		if !finite(b.HourlyPPM) {
			return fmt.Errorf("noise estimate is %g for exposure %gs and airmass %g; use text output", b.HourlyPPM, c.Exposure, c.MeanCubedAirmass)
		}
		resp := map[string]any{
			"instrument": opts.Instrument.Name,
			"conditions": c,
			"hourly_ppm": b.HourlyPPM,
		}
		if opts.Breakdown {
			resp["breakdown"] = b
		}
		return printJSON(resp)
	}

	if !opts.Breakdown {
		fmt.Fprintf(stdout, "%g\n", b.HourlyPPM)
		return nil
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  NOISE ESTIMATE ("+opts.Instrument.Name+")"))
	fmt.Fprintln(stdout, rule(38))
	row("Moon", fmt.Sprintf("%.1f%%", c.MoonPercent))
	row("Airmass", fmt.Sprintf("%.4f", c.MeanCubedAirmass))
	row("Magnitude", c.Magnitude)
	row("Exposure", fmt.Sprintf("%gs", c.Exposure))
	fmt.Fprintln(stdout)
	row("Aperture", fmt.Sprintf("%g px (ZP %g)", b.Aperture.Radius, b.Aperture.ZeroPoint))
	row("Sky rate", fmt.Sprintf("%g e-/arcsec²/s", b.SkyRate))
	row("Signal", fmt.Sprintf("%.1f e-", b.Signal))
	row("Read", fmt.Sprintf("%.2f e-", b.Read))
	row("Dark", fmt.Sprintf("%.2f e-", b.Dark))
	row("Shot", fmt.Sprintf("%.2f e-", b.Shot))
	row("Sky", fmt.Sprintf("%.2f e-", b.Sky))
	row("Scintillation", fmt.Sprintf("%.2f e-", b.Scintillation))
	row("Total", fmt.Sprintf("%.2f e-", b.Total))
	fmt.Fprintln(stdout)
	row("Hourly", colorize(bold, fmt.Sprintf("%.1f ppm", b.HourlyPPM)))
	fmt.Fprintln(stdout)

	return nil
}
