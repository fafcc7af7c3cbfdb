// Package metrics exposes the process-wide Prometheus collectors,
// registered once at package init and incremented from the booking,
// lockmgr, counter and cachelayer packages as they run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics, for the health/metrics listener's own request log.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Booking metrics.
	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Total number of bookings created",
		},
	)

	BookingsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_cancelled_total",
			Help: "Total number of bookings cancelled",
		},
	)

	BookingsRebooked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_rebooked_total",
			Help: "Total number of bookings moved to a different session",
		},
	)

	// EngineCommandFailuresTotal counts every rejected engine command by
	// the ErrorKind it failed with.
	EngineCommandFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_command_failures_total",
			Help: "Total number of rejected engine commands by failure kind",
		},
		[]string{"kind"},
	)

	// Credit metrics.
	CreditsDeducted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_deducted_total",
			Help: "Total credits deducted from contacts",
		},
	)

	CreditsRefunded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_refunded_total",
			Help: "Total credits refunded to contacts",
		},
	)

	CreditSerializationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_serialization_retries_total",
			Help: "Total SERIALIZABLE transaction retries in the credit ledger due to a 40001 conflict",
		},
	)

	CreditRefundFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_refund_failures_total",
			Help: "Total cancellations that could not restore the spent credit",
		},
	)

	// Lock manager metrics.
	LockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_acquisitions_total",
			Help: "Total session/contact lock acquisition attempts by outcome",
		},
		[]string{"outcome"}, // "acquired", "contended", "error"
	)

	LockHoldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lock_hold_duration_seconds",
			Help:    "Time a distributed lock was held before release",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Counter service metrics: the Redis-backed seat counter and its
	// Postgres fallback path.
	CounterFallbackInvocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_fallback_invocations_total",
			Help: "Total times the seat counter fell back to the locked Postgres total_bookings update",
		},
	)

	CounterDriftRepairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_drift_repairs_total",
			Help: "Total sessions whose cached seat count was repaired by reconciliation",
		},
	)

	// Cache layer metrics.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache lookups that found a fresh entry",
		},
		[]string{"key_prefix"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache lookups that found no entry",
		},
		[]string{"key_prefix"},
	)

	// Activation metrics.
	ActivationBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activation_batch_size",
			Help:    "Number of sessions activated per activator tick",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	ActivationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activation_failures_total",
			Help: "Total sessions that failed to activate on a due tick",
		},
	)

	// Database metrics.
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total number of database errors",
		},
	)

	// CRM client metrics.
	CRMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_requests_total",
			Help: "Total CRM-of-record HTTP requests by object type and outcome",
		},
		[]string{"object", "outcome"}, // outcome: "ok", "not_found", "unavailable"
	)

	CRMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_request_duration_seconds",
			Help:    "CRM-of-record HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"object"},
	)
)
