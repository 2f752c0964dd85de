// Package metrics exposes Prometheus counters and histograms for the
// engine's lifecycle events. There is no teacher file to ground this on
// directly (see DESIGN.md); client_golang is a direct ecosystem
// dependency of the teacher's go.mod wired to a concern the teacher itself
// never instrumented.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	TasksMaterialized  *prometheus.CounterVec
	RequestsTerminated *prometheus.CounterVec
	AdvanceLatency     prometheus.Histogram
}

// New registers the engine's collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksMaterialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaengine",
			Name:      "tasks_materialized_total",
			Help:      "Tasks created, by assignee_kind.",
		}, []string{"assignee_kind"}),
		RequestsTerminated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oaengine",
			Name:      "requests_terminated_total",
			Help:      "Requests reaching a terminal status, by status.",
		}, []string{"status"}),
		AdvanceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oaengine",
			Name:      "advance_seconds",
			Help:      "Latency of WorkflowEngine.Advance, end to end.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
