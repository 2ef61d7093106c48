// Package metrics exposes pipeline instrumentation in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/resilience"
)

const namespace = "vos"

// Metrics records stage timings, attempt counts and result quality.
type Metrics struct {
	reg *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageResults  *prometheus.CounterVec
	attempts      *prometheus.HistogramVec
	coverage      prometheus.Histogram
	intensity     *prometheus.CounterVec
	splits        prometheus.Counter
	runsInFlight  prometheus.Gauge
	breaker       *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		// Labels: stage (extract, visual, enforce, olfactory, intensity, assemble), status (ok, error code)
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "status"}),
		stageResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "results_total",
			Help:      "Pipeline stage completions by status",
		}, []string{"stage", "status"}),
		attempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "attempts",
			Help:      "Inference attempts consumed per stage run",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}, []string{"stage"}),
		coverage: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "visual",
			Name:      "coverage_ratio",
			Help:      "Coverage ratio of accepted visual timelines",
			Buckets:   []float64{0.5, 0.8, 0.9, 0.95, 0.975, 0.99, 1.0},
		}),
		intensity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "olfactory",
			Name:      "intervals_total",
			Help:      "Assessed intervals by intensity label",
		}, []string{"label"}),
		splits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enforce",
			Name:      "splits_total",
			Help:      "High-activity intervals split to honor the duration limit",
		}),
		runsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Pipeline runs currently executing",
		}),
		breaker: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "breaker_state",
			Help:      "Inference circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
	}
}

// Status is the label value recorded for err.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.CodeOf(err).String()
}

// StageDone records a finished stage.
func (m *Metrics) StageDone(stage string, d time.Duration, err error) {
	status := Status(err)
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
	m.stageResults.WithLabelValues(stage, status).Inc()
}

// Attempts records how many inference calls a stage consumed.
func (m *Metrics) Attempts(stage string, n int) {
	m.attempts.WithLabelValues(stage).Observe(float64(n))
}

// Coverage records an accepted coverage ratio.
func (m *Metrics) Coverage(ratio float64) { m.coverage.Observe(ratio) }

// Intensity counts one assessed interval.
func (m *Metrics) Intensity(label string) { m.intensity.WithLabelValues(label).Inc() }

// Splits counts enforcer splits.
func (m *Metrics) Splits(n int) { m.splits.Add(float64(n)) }

// RunStarted and RunFinished bracket a pipeline run.
func (m *Metrics) RunStarted()  { m.runsInFlight.Inc() }
func (m *Metrics) RunFinished() { m.runsInFlight.Dec() }

// BreakerHook returns a resilience.Breaker state hook that tracks name's state.
func (m *Metrics) BreakerHook(name string) func(from, to resilience.State) {
	m.breaker.WithLabelValues(name).Set(float64(resilience.Closed))
	return func(_, to resilience.State) { m.breaker.WithLabelValues(name).Set(float64(to)) }
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
