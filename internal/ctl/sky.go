package ctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/large-farva/photometry-kit/internal/noise"
	"github.com/large-farva/photometry-kit/internal/sky"
)

// AirmassOptions controls the airmass command.
type AirmassOptions struct {
	Altitudes []float64 // degrees
	JSON      bool
}

// Airmass prints the airmass at each altitude and the mean cubed airmass the
// noise model takes.
func Airmass(opts AirmassOptions) error {
	if len(opts.Altitudes) == 0 {
		return errors.New("at least one --alt is required")
	}

	samples := make([]float64, len(opts.Altitudes))
	for i, alt := range opts.Altitudes {
		samples[i] = sky.AirmassDeg(alt)
	}
	mean := sky.MeanCubedAirmass(samples)

	if opts.JSON {
		for i, x := range samples {
			if !finite(x) {
				return fmt.Errorf("airmass is infinite at altitude %g° (at or below the horizon); use text output", opts.Altitudes[i])
			}
		}
		return printJSON(map[string]any{
			"altitudes":          opts.Altitudes,
			"airmass":            samples,
			"mean_cubed_airmass": mean,
		})
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  AIRMASS"))
	fmt.Fprintln(stdout, rule(38))
	for i, alt := range opts.Altitudes {
		row(fmt.Sprintf("alt %5.1f°", alt), fmt.Sprintf("%.4f", samples[i]))
	}
	fmt.Fprintln(stdout)
	row("Mean X³", colorize(bold, fmt.Sprintf("%.4f", mean)))
	fmt.Fprintln(stdout)

	return nil
}

// MoonOptions controls the moon command.
type MoonOptions struct {
	At         time.Time // zero means now
	Instrument noise.Instrument
	JSON       bool
}

// Moon prints the Moon's illuminated percentage at opts.At and the sky
// background band it selects for the instrument.
func Moon(opts MoonOptions) error {
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	pct := sky.MoonIllumination(at)
	rate := opts.Instrument.SkyRate(pct)
	band := skyBand(pct)

	if opts.JSON {
		return printJSON(map[string]any{
			"at":           at.UTC().Format(time.RFC3339),
			"illumination": pct,
			"sky_band":     band,
			"sky_rate":     rate,
		})
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, header("  MOON"))
	fmt.Fprintln(stdout, rule(38))
	row("At", at.UTC().Format(time.RFC3339))
	row("Illuminated", fmt.Sprintf("%.1f%%", pct))
	row("Sky", fmt.Sprintf("%s (%g e-/arcsec²/s)", band, rate))
	fmt.Fprintln(stdout)

	return nil
}

func skyBand(moonPercent float64) string {
	switch {
	case moonPercent < noise.MediumMoon:
		return "dark"
	case moonPercent < noise.HighMoon:
		return "grey"
	default:
		return "bright"
	}
}
