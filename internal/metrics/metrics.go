// Package metrics holds the Prometheus collectors exported by photometryd.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the daemon's metrics and serves them over HTTP.
type Collector struct {
	gatherer prometheus.Gatherer

	Lookups         *prometheus.CounterVec
	LookupDurations *prometheus.HistogramVec
	NoiseEstimates  prometheus.Counter
}

// New registers the collectors against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bpmag_lookups_total",
		Help: "Magnitude lookups, labeled by outcome (ok, not_member, network, malformed, empty).",
	}, []string{"outcome"}), "bpmag_lookups_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bpmag_lookup_duration_seconds",
		Help:    "Magnitude lookup latency in seconds, including both remote queries.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"outcome"}), "bpmag_lookup_duration_seconds")
	if err != nil {
		return nil, err
	}

	estimates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noise_estimates_total",
		Help: "Noise estimates served.",
	}), "noise_estimates_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Lookups:         lookups,
		LookupDurations: durations,
		NoiseEstimates:  estimates,
	}, nil
}

// ObserveLookup records one lookup that started at start.
func (c *Collector) ObserveLookup(outcome string, start time.Time) {
	if c == nil {
		return
	}
	c.Lookups.WithLabelValues(outcome).Inc()
	c.LookupDurations.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// ObserveEstimate records one noise estimate.
func (c *Collector) ObserveEstimate() {
	if c == nil {
		return
	}
	c.NoiseEstimates.Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}
