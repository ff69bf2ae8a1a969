// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/franz/xeenaps-tracer/internal/util"
)

var (
	// AICalls counts AI proxy wrapper calls by operation and outcome
	AICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtr_ai_calls_total",
		Help: "AI proxy calls by operation and outcome",
	}, []string{"operation", "outcome"})

	// AIDuration tracks AI proxy latency
	AIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xtr_ai_call_duration_seconds",
		Help:    "AI proxy call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1min
	}, []string{"operation"})

	// SyncOps counts item synchronization operations
	SyncOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtr_sync_operations_total",
		Help: "Item synchronization operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// Rollbacks counts optimistic writes reverted after a failed remote write
	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtr_optimistic_rollbacks_total",
		Help: "Optimistic writes rolled back, by field and whether the revert applied",
	}, []string{"field", "applied"})

	// Dropped counts requests dropped because the same resource was busy
	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtr_dropped_requests_total",
		Help: "Requests dropped because the resource already had one in flight",
	}, []string{"operation"})

	// Broadcasts counts in-process broadcast events by topic
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xtr_broadcast_events_total",
		Help: "Broadcast events published by topic",
	}, []string{"topic"})
)

// Outcome maps an error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, util.ErrAIEmpty):
		return "empty"
	case errors.Is(err, util.ErrInvalidInput), errors.Is(err, util.ErrNoContent):
		return "rejected"
	default:
		return "error"
	}
}

// ObserveAI records one AI call.
func ObserveAI(operation string, start time.Time, err error) {
	AICalls.WithLabelValues(operation, Outcome(err)).Inc()
	AIDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
