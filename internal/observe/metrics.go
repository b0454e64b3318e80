// Package observe holds the Prometheus instruments for the attendance core.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Transitions counts dispatch outcomes by operation and status.
	Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herohours",
		Subsystem: "attendance",
		Name:      "transitions_total",
		Help:      "Dispatch outcomes by operation and status.",
	}, []string{"operation", "status"})

	// CheckedIn tracks the last known count of checked-in active members.
	CheckedIn = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "herohours",
		Subsystem: "attendance",
		Name:      "checked_in_members",
		Help:      "Currently checked-in active members.",
	})

	// BulkBatchSize observes how many members each bulk operation touched.
	BulkBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "herohours",
		Subsystem: "attendance",
		Name:      "bulk_batch_size",
		Help:      "Members touched per bulk transition.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	}, []string{"direction"})

	// ExportRuns counts sheet export attempts by result.
	ExportRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "herohours",
		Subsystem: "export",
		Name:      "runs_total",
		Help:      "Sheet export attempts by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(Transitions, CheckedIn, BulkBatchSize, ExportRuns)
}
