// Package metrics records comparison outcomes as Prometheus metrics.
//
// Metrics live in a private registry rather than the global default, so a
// test binary can create as many harnesses as it likes. The registry is
// exported with WriteTextfile for the node_exporter textfile collector, which
// suits batch runs that exit before anything could scrape them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Comparison outcomes.
const (
	OutcomePass       = "pass"
	OutcomeMismatch   = "mismatch"
	OutcomeStructural = "structural"
)

// Metrics holds the difftrace collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	callsRecorded   *prometheus.CounterVec
	comparisons     *prometheus.CounterVec
	mismatchReports *prometheus.CounterVec
	persistErrors   prometheus.Counter
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
}

// New creates collectors registered with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		callsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "difftrace_calls_recorded_total",
				Help: "Total number of module calls recorded in traces",
			},
			[]string{"backend"},
		),

		comparisons: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "difftrace_comparisons_total",
				Help: "Total number of target traces compared with a reference",
			},
			[]string{"backend", "outcome"},
		),

		mismatchReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "difftrace_mismatch_messages_total",
				Help: "Total number of mismatch diagnostics reported",
			},
			[]string{"backend"},
		),

		persistErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "difftrace_persist_errors_total",
				Help: "Total number of traces that failed to persist",
			},
		),

		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "difftrace_runs_total",
				Help: "Total number of comparison runs",
			},
			[]string{"outcome"},
		),

		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "difftrace_run_duration_seconds",
				Help:    "Wall time of a comparison run in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTrace counts the calls of one recorded trace.
func (m *Metrics) RecordTrace(backendID string, calls int) {
	if m == nil {
		return
	}
	m.callsRecorded.WithLabelValues(backendID).Add(float64(calls))
}

// RecordComparison counts one target comparison and its diagnostics.
func (m *Metrics) RecordComparison(backendID, outcome string, messages int) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(backendID, outcome).Inc()
	if messages > 0 {
		m.mismatchReports.WithLabelValues(backendID).Add(float64(messages))
	}
}

// RecordPersistError counts a trace that could not be written.
func (m *Metrics) RecordPersistError() {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

// RecordRun counts a finished run and observes its duration.
func (m *Metrics) RecordRun(passed bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomePass
	if !passed {
		outcome = OutcomeMismatch
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// WriteTextfile writes every metric in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
