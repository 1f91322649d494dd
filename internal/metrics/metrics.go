// Package metrics exposes the tick engine's Prometheus counters and
// gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "continuity",
		Name:      "ticks_total",
		Help:      "Completed ticks, partitioned by outcome (ok, aborted).",
	}, []string{"outcome"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "continuity",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of one full tick.",
		Buckets:   prometheus.DefBuckets,
	})

	StageGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "continuity",
		Name:      "stage_order",
		Help:      "Current escalation stage's order value, by project id.",
	}, []string{"project_id"})

	ReceiptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "continuity",
		Name:      "receipts_total",
		Help:      "Adapter receipts, partitioned by adapter and kind.",
	}, []string{"adapter", "kind"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "continuity",
		Name:      "breaker_state",
		Help:      "Per-adapter circuit breaker state (0=closed, 1=open, 2=half_open).",
	}, []string{"adapter"})

	RetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "continuity",
		Name:      "retry_queue_depth",
		Help:      "Number of entries currently pending in the retry queue.",
	})
)
