package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	analyticsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_analytics_dropped_total",
			Help: "Total number of analytics events dropped because the queue was full.",
		},
	)

	analyticsFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_analytics_failures_total",
			Help: "Total number of analytics events the sink failed to accept.",
		},
	)
)

const (
	outcomeApplied  = "applied"
	outcomeRejected = "rejected"
	outcomeNoop     = "noop"
	outcomeInvalid  = "invalid"
)

// record counts a mutation and tags its span with the outcome.
func record(span trace.Span, op, outcome string) {
	mutationsTotal.WithLabelValues(op, outcome).Inc()
	span.SetAttributes(attribute.String("cart.outcome", outcome))
}
