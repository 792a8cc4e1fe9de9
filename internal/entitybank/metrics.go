package entitybank

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts service operations.
	// Labels: operation (flag, unflag, alias, delete, learn, list,
	// flagged_names, reload), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "operations_total",
			Help:      "Total number of entity bank operations",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration tracks how long service operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "operation_duration_seconds",
			Help:      "Duration of entity bank operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// LookupsTotal counts lookups by how they resolved.
	// Labels: stage (exact, alias, substring, cache, miss)
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "lookups_total",
			Help:      "Total number of lookups by resolution stage",
		},
		[]string{"stage"},
	)

	// TierRecords tracks the number of records loaded per tier.
	TierRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "tier_records",
			Help:      "Number of records currently held per tier",
		},
		[]string{"tier"},
	)

	// TierLoadFailures counts tier loads that degraded to empty.
	TierLoadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "tier_load_failures_total",
			Help:      "Total number of tier loads that degraded to an empty tier",
		},
		[]string{"tier"},
	)

	// SaveDuration tracks whole-tier rewrite latency.
	SaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "counterpartyd",
			Subsystem: "entitybank",
			Name:      "save_duration_seconds",
			Help:      "Duration of whole-tier rewrites in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tier"},
	)
)

// recordOperation records the outcome counter for one service operation.
func recordOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
}
