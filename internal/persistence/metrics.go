package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_snapshot_writes_total",
			Help: "Total number of snapshot writes by outcome.",
		},
		[]string{"outcome"},
	)

	snapshotLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_snapshot_loads_total",
			Help: "Total number of snapshot loads by outcome.",
		},
		[]string{"outcome"},
	)

	snapshotItemsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_snapshot_items_dropped_total",
			Help: "Total number of restored line items dropped for failing validation.",
		},
	)
)
