// Package metrics exposes Prometheus instrumentation for validation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the validation metrics on its own registry so callers can
// choose where (or whether) to expose them. A nil *Recorder is valid and
// records nothing, which keeps instrumentation optional at call sites.
type Recorder struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	serviceRetries *prometheus.CounterVec
	serviceHealthy *prometheus.GaugeVec
}

// NewRecorder creates a Recorder backed by a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "readycheck",
			Name:      "validation_runs_total",
			Help:      "Validation runs by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "readycheck",
			Name:      "validation_run_duration_seconds",
			Help:      "Wall-clock duration of full validation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		serviceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "readycheck",
			Name:      "service_health_retries_total",
			Help:      "Health-probe retries performed per service.",
		}, []string{"service"}),
		serviceHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "readycheck",
			Name:      "service_healthy",
			Help:      "Latest health outcome per service (1 healthy, 0 unhealthy).",
		}, []string{"service"}),
	}
}

// Registry returns the underlying registry for exposure via promhttp or for
// gathering in tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRun records one completed validation run.
func (r *Recorder) RecordRun(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(duration.Seconds())
}

// RecordServiceResult records the outcome and retry count of one service
// validation.
func (r *Recorder) RecordServiceResult(service string, healthy bool, retries int) {
	if r == nil {
		return
	}
	if retries > 0 {
		r.serviceRetries.WithLabelValues(service).Add(float64(retries))
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.serviceHealthy.WithLabelValues(service).Set(v)
}
