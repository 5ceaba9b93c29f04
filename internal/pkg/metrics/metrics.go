// Package metrics defines and registers all custom Prometheus metrics for the
// transit tracker. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default registry at package init through
// promauto; the HTTP layer exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracker"

// ── Ingest metrics ────────────────────────────────────────────────────────────

// ReportsIngestedTotal counts reports that produced a new authoritative state.
// Label:
//   - status: the resulting vehicle status ("running" or "arrived")
var ReportsIngestedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_ingested_total",
		Help:      "Total number of position reports applied to the vehicle map.",
	},
	[]string{"status"},
)

// ReportsInvalidTotal counts reports rejected as malformed.
var ReportsInvalidTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_invalid_total",
		Help:      "Total number of position reports rejected by validation.",
	},
)

// RouteUnresolvedTotal counts reports whose route could not be resolved and
// fell back to the fixed ETA.
var RouteUnresolvedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_unresolved_total",
		Help:      "Total number of reports that used the fallback ETA because the route was unknown.",
	},
)

// StatusHintsUnknownTotal counts reports carrying a status hint outside the
// known statuses. The hint is ignored either way.
var StatusHintsUnknownTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_hints_unknown_total",
		Help:      "Total number of reports whose status hint was not a known status.",
	},
)

// IngestDuration measures the read-compute-write-publish cycle of one report.
var IngestDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Duration of a single report ingest including distribution.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	},
)

// GeoIndexErrorsTotal counts failed writes or reads against the Redis geo index.
var GeoIndexErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geo_index_errors_total",
		Help:      "Total number of failed geo index operations.",
	},
	[]string{"op"},
)

// DispatchQueueDepth tracks the number of reports waiting in each batch worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var DispatchQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Current number of reports pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// BatchDedupTotal counts idempotency decisions for batch submissions.
// Label:
//   - result: "hit" (duplicate, skipped) or "miss" (new batch, enqueued)
var BatchDedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_dedup_total",
		Help:      "Total number of batch idempotency checks, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// ── Distribution metrics ──────────────────────────────────────────────────────

// ObserversConnected is the number of live stream subscriptions.
var ObserversConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observers_connected",
		Help:      "Number of observers currently subscribed to the vehicle stream.",
	},
)

// StreamMessagesTotal counts messages handed to observer queues.
// Label:
//   - type: vehicles_snapshot, vehicle_update or routes_changed
var StreamMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_messages_total",
		Help:      "Total number of stream messages queued for observers.",
	},
	[]string{"type"},
)

// ObserversEvictedTotal counts observers disconnected because their queue was full.
var ObserversEvictedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observers_evicted_total",
		Help:      "Total number of slow observers disconnected with a full send queue.",
	},
)
