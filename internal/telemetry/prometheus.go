// Package telemetry exposes probe and backup measurements to Prometheus and,
// optionally, pushes probe gauges to an OTLP endpoint.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
	"vpsdash/internal/probe"
)

const namespace = "vpsdash"

// FailureCounter reports the current failure streak of a probe
type FailureCounter interface {
	ConsecutiveFailures(name string) int
}

// Metrics is a health.Observer and a backup.Recorder backed by its own
// Prometheus registry
type Metrics struct {
	registry *prometheus.Registry
	failures FailureCounter

	probeStatus         *prometheus.GaugeVec
	probeValue          *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
	publishTotal        prometheus.Counter

	runsTotal    *prometheus.CounterVec
	stepAttempts *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector. failures may be nil.
func NewMetrics(failures FailureCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		failures: failures,

		probeStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_status",
			Help:      "Probe status severity: 0 UNKNOWN, 1 OK, 2 WARN, 3 CRIT.",
		}, []string{"probe"}),
		probeValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_value",
			Help:      "Last numeric value reported by a probe.",
		}, []string{"probe"}),
		consecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_consecutive_failures",
			Help:      "Consecutive cycles a probe has not reported OK.",
		}, []string{"probe"}),
		publishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publish_total",
			Help:      "Snapshots published by the aggregator.",
		}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_runs_total",
			Help:      "Finished backup runs by outcome.",
		}, []string{"outcome"}),
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_step_attempts_total",
			Help:      "Backup step attempts by step and outcome.",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_step_duration_seconds",
			Help:      "Duration of backup step attempts.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"step"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probeStatus,
		m.probeValue,
		m.consecutiveFailures,
		m.publishTotal,
		m.runsTotal,
		m.stepAttempts,
		m.stepDuration,
	)
	return m
}

// Registry is the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format for /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates the probe gauges from a published snapshot
func (m *Metrics) Observe(s health.Snapshot) {
	m.publishTotal.Inc()
	for _, r := range s.Results {
		m.probeStatus.WithLabelValues(r.Name).Set(float64(r.Status.Severity()))
		if v, ok := numeric(r); ok {
			m.probeValue.WithLabelValues(r.Name).Set(v)
		}
		if m.failures != nil {
			m.consecutiveFailures.WithLabelValues(r.Name).Set(float64(m.failures.ConsecutiveFailures(r.Name)))
		}
	}
}

// StepAttempt counts one step attempt and records its duration
func (m *Metrics) StepAttempt(step backup.StepName, outcome backup.StepOutcome, d time.Duration) {
	m.stepAttempts.WithLabelValues(string(step), string(outcome)).Inc()
	m.stepDuration.WithLabelValues(string(step)).Observe(d.Seconds())
}

// RunFinished counts a run by outcome
func (m *Metrics) RunFinished(run backup.Run) {
	m.runsTotal.WithLabelValues(string(run.Outcome)).Inc()
}

func numeric(r probe.Result) (float64, bool) {
	switch v := r.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
