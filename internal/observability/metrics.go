// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Game metrics
	FlipsSubmitted     prometheus.Counter
	FlipsResolved      *prometheus.CounterVec
	WithdrawalsTotal   prometheus.Counter
	ApprovalsTotal     prometheus.Counter
	SubmitErrors       *prometheus.CounterVec
	BetAmountVIN       prometheus.Histogram
	FlipResolutionTime prometheus.Histogram

	// Event metrics
	EventsObserved        *prometheus.CounterVec
	EventsArchived        prometheus.Counter
	EventProcessingErrors *prometheus.CounterVec
	LeaderboardSize       prometheus.Gauge

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	WSReconnects   prometheus.Counter
	ReceiptPolls   prometheus.Counter

	// Wallet metrics
	WalletConnects   prometheus.Counter
	WalletRejections *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastEventObserved prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vinflip"
	}

	return &Metrics{
		// Game metrics
		FlipsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "flips_submitted_total",
			Help:      "Total number of flip transactions submitted",
		}),
		FlipsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "flips_resolved_total",
			Help:      "Total number of flips resolved by outcome",
		}, []string{"outcome"}),
		WithdrawalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "withdrawals_total",
			Help:      "Total number of successful withdrawals",
		}),
		ApprovalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "approvals_total",
			Help:      "Total number of successful spend approvals",
		}),
		SubmitErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "submit_errors_total",
			Help:      "Total number of failed submissions by operation and reason",
		}, []string{"op", "reason"}),
		BetAmountVIN: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "bet_amount_vin",
			Help:      "Bet amounts in VIN",
			Buckets:   []float64{0.1, 1, 10, 100, 1000, 10000, 100000},
		}),
		FlipResolutionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "flip_resolution_seconds",
			Help:      "Time from submission to FlipResult event",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120},
		}),

		// Event metrics
		EventsObserved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "observed_total",
			Help:      "Total number of contract events observed by type",
		}, []string{"event_type"}),
		EventsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "archived_total",
			Help:      "Total number of events written to the archive",
		}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"event_type", "error_type"}),
		LeaderboardSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "leaderboard_size",
			Help:      "Current number of leaderboard entries",
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),
		ReceiptPolls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "receipt_polls_total",
			Help:      "Total number of transaction receipt polls",
		}),

		// Wallet metrics
		WalletConnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "connects_total",
			Help:      "Total number of successful wallet connections",
		}),
		WalletRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "rejections_total",
			Help:      "Total number of user rejections by request type",
		}, []string{"request"}),

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
		LastEventObserved: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_observed_timestamp",
			Help:      "Unix timestamp of the last contract event observed",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFlipSubmitted increments the flips submitted counter and observes
// the bet size.
func RecordFlipSubmitted(amountVIN float64) {
	DefaultMetrics.FlipsSubmitted.Inc()
	DefaultMetrics.BetAmountVIN.Observe(amountVIN)
}

// RecordFlipResolved records a resolved flip by outcome.
func RecordFlipResolved(won bool) {
	outcome := "lost"
	if won {
		outcome = "won"
	}
	DefaultMetrics.FlipsResolved.WithLabelValues(outcome).Inc()
}

// RecordSubmitError records a failed submission.
func RecordSubmitError(op, reason string) {
	DefaultMetrics.SubmitErrors.WithLabelValues(op, reason).Inc()
}

// RecordEventObserved records an observed contract event and refreshes the
// health timestamp.
func RecordEventObserved(eventType string, unixSeconds float64) {
	DefaultMetrics.EventsObserved.WithLabelValues(eventType).Inc()
	DefaultMetrics.LastEventObserved.Set(unixSeconds)
}

// RecordEventError records an event processing error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// RecordEventArchived increments the archive counter.
func RecordEventArchived() {
	DefaultMetrics.EventsArchived.Inc()
}

// UpdateLeaderboardSize updates the leaderboard size gauge.
func UpdateLeaderboardSize(n int) {
	DefaultMetrics.LeaderboardSize.Set(float64(n))
}

// RecordRPCLatency records JSON-RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSReconnect increments the WebSocket reconnect counter.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordReceiptPoll increments the receipt poll counter.
func RecordReceiptPoll() {
	DefaultMetrics.ReceiptPolls.Inc()
}

// ObserveFlipResolution records the time from submission to the FlipResult
// event.
func ObserveFlipResolution(seconds float64) {
	DefaultMetrics.FlipResolutionTime.Observe(seconds)
}

// AddUptime adds elapsed seconds to the uptime counter.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}

// RecordWalletConnect increments the wallet connect counter.
func RecordWalletConnect() {
	DefaultMetrics.WalletConnects.Inc()
}

// RecordWalletRejection records a user rejection by request type.
func RecordWalletRejection(request string) {
	DefaultMetrics.WalletRejections.WithLabelValues(request).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
