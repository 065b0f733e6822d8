// Package metrics wraps the Prometheus client library with the counters
// and histograms this repository's components increment:
// calendar submit outcomes, upgrade pass duration, completed proofs, and
// bytes reclaimed by pruning. The core library only ever increments these;
// starting an HTTP server to expose them is left to the CLI glue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds every counter/histogram this repository exports.
// All are registered against a private registry so importing this package
// never pollutes prometheus.DefaultRegisterer.
type Metrics struct {
	registry *prometheus.Registry

	CalendarSubmitAttempts *prometheus.CounterVec
	CalendarSubmitSuccess  *prometheus.CounterVec
	CalendarSubmitFailure  *prometheus.CounterVec

	UpgradePassDuration prometheus.Histogram
	ProofsCompleted     prometheus.Counter
	PruneBytesReclaimed prometheus.Counter
}

// New constructs a Metrics bound to a fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CalendarSubmitAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronoproof",
			Subsystem: "calendar",
			Name:      "submit_attempts_total",
			Help:      "Total calendar submit attempts, labeled by calendar URL.",
		}, []string{"calendar_url"}),
		CalendarSubmitSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronoproof",
			Subsystem: "calendar",
			Name:      "submit_success_total",
			Help:      "Total successful calendar submissions, labeled by calendar URL.",
		}, []string{"calendar_url"}),
		CalendarSubmitFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chronoproof",
			Subsystem: "calendar",
			Name:      "submit_failure_total",
			Help:      "Total failed calendar submissions, labeled by calendar URL.",
		}, []string{"calendar_url"}),
		UpgradePassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chronoproof",
			Subsystem: "upgrade",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one upgrade engine pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		ProofsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronoproof",
			Name:      "proofs_completed_total",
			Help:      "Total proofs that reached a Bitcoin-complete state.",
		}),
		PruneBytesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronoproof",
			Subsystem: "prune",
			Name:      "bytes_reclaimed_total",
			Help:      "Total serialized bytes removed by pruning across all runs.",
		}),
	}

	reg.MustRegister(
		m.CalendarSubmitAttempts,
		m.CalendarSubmitSuccess,
		m.CalendarSubmitFailure,
		m.UpgradePassDuration,
		m.ProofsCompleted,
		m.PruneBytesReclaimed,
	)
	return m
}

// Handler returns an http.Handler exposing this Metrics' registry in the
// Prometheus exposition format. The core library never calls this; only
// CLI/daemon glue that wants a scrape endpoint does.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
