// Package observability holds the process-wide Prometheus metrics and the
// structured logger setup shared by every tierbot component.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Progress Metrics ───────────────────────────────────────────────────────

// ActivityEvents counts activity events applied to the progress store.
var ActivityEvents = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "progress",
	Name:      "activity_events_total",
	Help:      "Total activity events counted.",
})

// TrackedUsers tracks how many users the progress store holds.
var TrackedUsers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tierbot",
	Subsystem: "progress",
	Name:      "tracked_users",
	Help:      "Number of users with a progress record.",
})

// PendingRecords tracks records changed since the last successful flush.
var PendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tierbot",
	Subsystem: "progress",
	Name:      "pending_records",
	Help:      "Progress records waiting to be persisted.",
})

// PersistFailures counts failed flushes.
var PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "progress",
	Name:      "persist_failures_total",
	Help:      "Total progress flushes that failed.",
})

// ─── Tier Metrics ───────────────────────────────────────────────────────────

// TierChanges counts acknowledged tier changes by tier name and mode.
var TierChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "tier",
	Name:      "changes_total",
	Help:      "Total acknowledged tier changes.",
}, []string{"tier", "mode"})

// GroupOperations counts grant/revoke calls by outcome.
var GroupOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "roles",
	Name:      "operations_total",
	Help:      "Total group membership operations by op and result.",
}, []string{"op", "result"})

// ReconcileSkipped counts reconciliations aborted before any operation.
var ReconcileSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "roles",
	Name:      "reconcile_skipped_total",
	Help:      "Reconciliations skipped because the target group did not resolve.",
}, []string{"reason"})

// ─── Promotion Metrics ──────────────────────────────────────────────────────

// Offers counts promotion offer transitions by outcome
// (offered, superseded, confirmed, expired, rejected, failed).
var Offers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "promotion",
	Name:      "offers_total",
	Help:      "Total promotion offer transitions by outcome.",
}, []string{"outcome"})

// LiveOffers tracks currently outstanding offers.
var LiveOffers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tierbot",
	Subsystem: "promotion",
	Name:      "live_offers",
	Help:      "Promotion offers awaiting confirmation.",
})

// ─── Lookup Metrics ─────────────────────────────────────────────────────────

// LookupLatency tracks authoritative count lookup latency by result.
var LookupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tierbot",
	Subsystem: "lookup",
	Name:      "latency_seconds",
	Help:      "Authoritative activity count lookup latency.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
}, []string{"result"})

// ─── Dispatcher Metrics ─────────────────────────────────────────────────────

// DispatchRejected counts activity tasks dropped because every slot was busy.
var DispatchRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tierbot",
	Subsystem: "dispatch",
	Name:      "rejected_total",
	Help:      "Activity tasks rejected at capacity.",
})

// DispatchActive tracks in-flight activity tasks.
var DispatchActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tierbot",
	Subsystem: "dispatch",
	Name:      "active",
	Help:      "Activity tasks currently executing.",
})
