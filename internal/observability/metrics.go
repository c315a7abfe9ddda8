// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backend metrics
	BackendLatency   *prometheus.HistogramVec
	MetricsFetches   *prometheus.CounterVec
	LedgerSyncs      *prometheus.CounterVec
	WithdrawRequests *prometheus.CounterVec

	// Wallet metrics
	PaymentTransitions *prometheus.CounterVec
	IncompletePayments prometheus.Counter
	Authentications    *prometheus.CounterVec

	// Session metrics
	ActiveSessions    prometheus.Gauge
	PollTicks         prometheus.Counter
	StaleResponses    *prometheus.CounterVec
	SnapshotsRejected *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mapcap_ipo"
	}

	return &Metrics{
		// Backend metrics
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "MapCap backend request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		MetricsFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "metrics_fetches_total",
			Help:      "Total number of IPO metrics fetches by result",
		}, []string{"result"}),
		LedgerSyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "ledger_syncs_total",
			Help:      "Total number of payment ledger syncs by result",
		}, []string{"result"}),
		WithdrawRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "withdraw_requests_total",
			Help:      "Total number of withdrawal requests by result",
		}, []string{"result"}),

		// Wallet metrics
		PaymentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "payment_transitions_total",
			Help:      "Total number of payment state transitions by phase entered",
		}, []string{"phase"}),
		IncompletePayments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "incomplete_payments_total",
			Help:      "Total number of incomplete payments reported on login",
		}),
		Authentications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "authentications_total",
			Help:      "Total number of wallet authentications by result",
		}, []string{"result"}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of connected dashboard sessions",
		}),
		PollTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "poll_ticks_total",
			Help:      "Total number of metrics fetches dispatched by pollers",
		}),
		StaleResponses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_responses_total",
			Help:      "Total number of fetch responses discarded as stale",
		}, []string{"component"}),
		SnapshotsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "snapshots_rejected_total",
			Help:      "Total number of snapshots flagged for review by reason",
		}, []string{"reason"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last accepted metrics snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBackendLatency records backend request latency.
func RecordBackendLatency(endpoint string, seconds float64) {
	DefaultMetrics.BackendLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordMetricsFetch records the result of a metrics fetch.
func RecordMetricsFetch(result string) {
	DefaultMetrics.MetricsFetches.WithLabelValues(result).Inc()
}

// RecordLedgerSync records the result of a payment ledger sync.
func RecordLedgerSync(result string) {
	DefaultMetrics.LedgerSyncs.WithLabelValues(result).Inc()
}

// RecordWithdrawal records the result of a withdrawal request.
func RecordWithdrawal(result string) {
	DefaultMetrics.WithdrawRequests.WithLabelValues(result).Inc()
}

// RecordPaymentTransition records a payment entering phase.
func RecordPaymentTransition(phase string) {
	DefaultMetrics.PaymentTransitions.WithLabelValues(phase).Inc()
}

// RecordIncompletePayment records an incomplete payment reported by the wallet.
func RecordIncompletePayment() {
	DefaultMetrics.IncompletePayments.Inc()
}

// RecordAuthentication records the result of a wallet authentication.
func RecordAuthentication(result string) {
	DefaultMetrics.Authentications.WithLabelValues(result).Inc()
}

// SessionOpened increments the active sessions gauge.
func SessionOpened() {
	DefaultMetrics.ActiveSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func SessionClosed() {
	DefaultMetrics.ActiveSessions.Dec()
}

// RecordPollTick records a fetch dispatched by a poller.
func RecordPollTick() {
	DefaultMetrics.PollTicks.Inc()
}

// RecordStaleResponse records a response discarded by sequence fencing.
func RecordStaleResponse(component string) {
	DefaultMetrics.StaleResponses.WithLabelValues(component).Inc()
}

// RecordSnapshotRejected records a snapshot flagged for review.
func RecordSnapshotRejected(reason string) {
	DefaultMetrics.SnapshotsRejected.WithLabelValues(reason).Inc()
}

// RecordSnapshotAccepted marks the time of the last accepted snapshot.
func RecordSnapshotAccepted(at time.Time) {
	DefaultMetrics.LastSuccessfulSync.Set(float64(at.Unix()))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
