package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cycles"

// Closure outcomes recorded on ClosuresTotal.
const (
	closureClosed    = "closed"
	closureDuplicate = "duplicate"
	closureRejected  = "rejected"
)

// Metrics holds the engine's Prometheus counters.
type Metrics struct {
	// ClosuresTotal counts closure attempts.
	// Labels: result (closed, duplicate, rejected)
	ClosuresTotal *prometheus.CounterVec

	// BackfillsTotal counts activities applied to past snapshots.
	// Labels: category
	BackfillsTotal *prometheus.CounterVec

	// AggregateFieldErrorsTotal counts aggregate fields that failed and
	// were zeroed.
	// Labels: field
	AggregateFieldErrorsTotal *prometheus.CounterVec

	// RecomputesTotal counts system total recomputations.
	RecomputesTotal prometheus.Counter
}

// NewMetrics creates the engine counters and registers them with reg.
// A nil reg leaves the counters unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClosuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "closures_total",
				Help:      "Cycle closure attempts by result",
			},
			[]string{"result"},
		),
		BackfillsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "backfills_total",
				Help:      "Activities applied to past cycle snapshots by category",
			},
			[]string{"category"},
		),
		AggregateFieldErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "aggregate_field_errors_total",
				Help:      "Aggregate fields zeroed after a computation failure",
			},
			[]string{"field"},
		),
		RecomputesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recomputes_total",
				Help:      "Snapshot system total recomputations",
			},
		),
	}
}
