// Package sky derives observing-condition inputs for the noise model: airmass
// from target altitude, the mean cubed airmass over an observation, and the
// Moon's illuminated fraction at a given time.
package sky

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonillum"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/stat"
)

// Airmass returns the plane-parallel airmass, sec z, for a target at altitude
// alt. Targets at or below the horizon have infinite airmass.
func Airmass(alt unit.Angle) float64 {
	s := alt.Sin()
	if s <= 0 {
		return math.Inf(1)
	}
	return 1 / s
}

// AirmassDeg is Airmass for an altitude in degrees.
func AirmassDeg(altDeg float64) float64 {
	return Airmass(unit.AngleFromDeg(altDeg))
}

// MeanCubedAirmass returns the mean of X^3 over the airmass samples. It is NaN
// for an empty slice.
func MeanCubedAirmass(samples []float64) float64 {
	cubes := make([]float64, len(samples))
	for i, x := range samples {
		cubes[i] = x * x * x
	}
	return stat.Mean(cubes, nil)
}

// MeanCubedAirmassDeg converts altitudes in degrees to airmass and returns
// their mean cube.
func MeanCubedAirmassDeg(altsDeg []float64) float64 {
	samples := make([]float64, len(altsDeg))
	for i, a := range altsDeg {
		samples[i] = AirmassDeg(a)
	}
	return MeanCubedAirmass(samples)
}

// MoonIllumination returns the illuminated fraction of the Moon's disk at t,
// as a percentage in [0, 100].
func MoonIllumination(t time.Time) float64 {
	jd := julian.TimeToJD(t.UTC())
	i := moonillum.PhaseAngle3(jd)
	return base.Illuminated(i) * 100
}
