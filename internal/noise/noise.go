// Package noise predicts the hourly photometric noise, in parts per million,
// of a target observed with a given instrument under given conditions. The
// model adds read, dark, source, sky and scintillation noise in quadrature.
package noise

import (
	"math"

	"github.com/large-farva/photometry-kit/internal/config"
)

// DefaultExposure is the exposure time, in seconds, assumed when none is set.
const DefaultExposure = 30.0

// Magnitude and moon-illumination thresholds of the piecewise policies. Each
// bound is closed below: a value equal to a threshold selects the upper branch.
const (
	MediumApertureMag = 14.0
	SmallApertureMag  = 18.0
	MediumMoon        = 25.0
	HighMoon          = 75.0
)

// Instrument holds every fixed constant of the model.
type Instrument struct {
	Name              string
	PlateScale        float64 // arcsec/pixel
	Gain              float64 // e-/ADU
	ReadNoise         float64 // e-
	DarkCurrent       float64 // e-/pixel/s
	SkyLow            float64 // e-/arcsec^2/s
	SkyMedium         float64
	SkyHigh           float64
	TelescopeAperture float64 // m
	ScaleHeight       float64 // m
	ScintillationCoef float64 // m^(2/3) s^(1/2)
	ObservatoryHeight float64 // m
	ZeroPointLarge    float64 // mag, 20 px radius
	ZeroPointMedium   float64 // mag, 10 px radius
	ZeroPointSmall    float64 // mag, 5 px radius
	ReadoutTime       float64 // s
}

// DefaultInstrument returns the profile from the default configuration.
func DefaultInstrument() Instrument {
	return FromConfig(config.Default().Instrument)
}

// FromConfig converts the [instrument] config section.
func FromConfig(c config.InstrumentConfig) Instrument {
	return Instrument{
		Name:              c.Name,
		PlateScale:        c.PlateScale,
		Gain:              c.Gain,
		ReadNoise:         c.ReadNoise,
		DarkCurrent:       c.DarkCurrent,
		SkyLow:            c.SkyLow,
		SkyMedium:         c.SkyMedium,
		SkyHigh:           c.SkyHigh,
		TelescopeAperture: c.TelescopeAperture,
		ScaleHeight:       c.ScaleHeight,
		ScintillationCoef: c.ScintillationCoef,
		ObservatoryHeight: c.ObservatoryHeight,
		ZeroPointLarge:    c.ZeroPointLarge,
		ZeroPointMedium:   c.ZeroPointMedium,
		ZeroPointSmall:    c.ZeroPointSmall,
		ReadoutTime:       c.ReadoutTime,
	}
}

// Conditions are the per-observation inputs.
type Conditions struct {
	MoonPercent      float64 `json:"moon_percent"`
	MeanCubedAirmass float64 `json:"mean_cubed_airmass"`
	Magnitude        float64 `json:"magnitude"`
	Exposure         float64 `json:"exposure"` // s
}

// NewConditions builds Conditions with the default exposure time.
func NewConditions(moon, airmass, mag float64) Conditions {
	return Conditions{
		MoonPercent:      moon,
		MeanCubedAirmass: airmass,
		Magnitude:        mag,
		Exposure:         DefaultExposure,
	}
}

// WithExposure returns c with the exposure time replaced.
func (c Conditions) WithExposure(seconds float64) Conditions {
	c.Exposure = seconds
	return c
}

// Aperture is a photometric aperture and its zero-point.
type Aperture struct {
	Radius    float64 `json:"radius_px"`
	ZeroPoint float64 `json:"zero_point"`
}

// Pixels returns the aperture area in pixels.
func (a Aperture) Pixels() float64 {
	return math.Pi * a.Radius * a.Radius
}

// SelectAperture picks the aperture for a target of magnitude mag.
func (inst Instrument) SelectAperture(mag float64) Aperture {
	switch {
	case mag < MediumApertureMag:
		return Aperture{Radius: 20, ZeroPoint: inst.ZeroPointLarge}
	case mag < SmallApertureMag:
		return Aperture{Radius: 10, ZeroPoint: inst.ZeroPointMedium}
	default:
		return Aperture{Radius: 5, ZeroPoint: inst.ZeroPointSmall}
	}
}

// SkyRate returns the sky background rate, e-/arcsec^2/s, for the given moon
// illumination percentage.
func (inst Instrument) SkyRate(moonPercent float64) float64 {
	switch {
	case moonPercent < MediumMoon:
		return inst.SkyLow
	case moonPercent < HighMoon:
		return inst.SkyMedium
	default:
		return inst.SkyHigh
	}
}

// Breakdown is every intermediate quantity of one estimate. Noise terms are
// in electrons per exposure.
type Breakdown struct {
	Aperture      Aperture `json:"aperture"`
	Pixels        float64  `json:"pixels"`
	SkyRate       float64  `json:"sky_rate"`
	Signal        float64  `json:"signal"`
	Read          float64  `json:"read_noise"`
	Dark          float64  `json:"dark_noise"`
	Shot          float64  `json:"shot_noise"`
	Sky           float64  `json:"sky_noise"`
	Scintillation float64  `json:"scintillation_noise"`
	Total         float64  `json:"total_noise"`
	HourlyPPM     float64  `json:"hourly_ppm"`
}

// Breakdown evaluates the model and returns all of its terms. Inputs are not
// checked; a non-positive exposure yields NaN or Inf.
func (inst Instrument) Breakdown(c Conditions) Breakdown {
	t := c.Exposure
	ap := inst.SelectAperture(c.Magnitude)
	npix := ap.Pixels()
	sky := inst.SkyRate(c.MoonPercent)

	signal := math.Pow(10, (ap.ZeroPoint-c.Magnitude)/2.5) * t

	b := Breakdown{
		Aperture: ap,
		Pixels:   npix,
		SkyRate:  sky,
		Signal:   signal,
		Read:     inst.ReadNoise * math.Sqrt(npix),
		Dark:     math.Sqrt(inst.DarkCurrent * t * npix),
		Shot:     math.Sqrt(signal),
		Sky:      math.Sqrt(sky * inst.PlateScale * inst.PlateScale * npix * t),
	}
	b.Scintillation = inst.scintillation(c.MeanCubedAirmass, t) * signal

	b.Total = math.Sqrt(b.Read*b.Read + b.Dark*b.Dark + b.Shot*b.Shot + b.Sky*b.Sky + b.Scintillation*b.Scintillation)
	b.HourlyPPM = b.Total / signal * math.Sqrt((t+inst.ReadoutTime)/3600) * 1e6
	return b
}

// scintillation returns the fractional scintillation noise for one exposure
// of t seconds at the given mean cubed airmass.
func (inst Instrument) scintillation(airmass, t float64) float64 {
	cy := inst.ScintillationCoef
	return math.Sqrt(1e-5 * cy * cy * math.Pow(inst.TelescopeAperture, -4.0/3.0) * airmass *
		math.Exp(-2*inst.ObservatoryHeight/inst.ScaleHeight) / t)
}

// Estimate returns the predicted hourly noise in ppm.
func Estimate(inst Instrument, c Conditions) float64 {
	return inst.Breakdown(c).HourlyPPM
}

// HourlyNoisePPM evaluates the default instrument.
func HourlyNoisePPM(moonPercent, meanCubedAirmass, mag, exposure float64) float64 {
	c := NewConditions(moonPercent, meanCubedAirmass, mag).WithExposure(exposure)
	return Estimate(DefaultInstrument(), c)
}
