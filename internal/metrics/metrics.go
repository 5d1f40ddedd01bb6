package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound feed requests (price quotes and exchange rates).
	FeedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spms_feed_requests_total",
			Help: "Total number of market-data feed requests made.",
		},
		[]string{"endpoint", "result"}, // result = "ok" | "error"
	)

	// Measures duration of feed requests.
	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spms_feed_request_duration_seconds",
			Help:    "Duration of feed requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint"},
	)

	// Tracks storage operations by kind and outcome.
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spms_store_operations_total",
			Help: "Total number of storage operations.",
		},
		[]string{"op", "result"}, // result = "ok" | "rejected" | "error"
	)

	// Tracks refresh cycles run by the background refreshers.
	RefreshCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spms_refresh_cycles_total",
			Help: "Total number of scheduled refresh cycles executed.",
		},
		[]string{"component"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spms_errors_total",
			Help: "Count of engine-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful refresh time (seconds since epoch).
	LastRefreshTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spms_last_refresh_timestamp",
			Help: "Timestamp (unix seconds) of the last successful price or rate refresh.",
		},
		[]string{"component"},
	)

	// Tracks messages published to NATS by subject and outcome.
	NATSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spms_nats_messages_total",
			Help: "Total number of messages published to NATS.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	// Measures publish latency to NATS.
	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spms_nats_publish_duration_seconds",
			Help:    "Duration of NATS publish calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"subject"},
	)

	// Gauges current catalog size.
	PortfolioCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spms_portfolios",
			Help: "Number of portfolios currently in the catalog.",
		},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v *prometheus.HistogramVec, start time.Time, labels ...string) {
	v.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncFeedRequest(endpoint, result string) {
	FeedRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

func IncStoreOp(op, result string) {
	StoreOpsTotal.WithLabelValues(op, result).Inc()
}

func IncRefreshCycle(component string) {
	RefreshCyclesTotal.WithLabelValues(component).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessagesTotal.WithLabelValues(subject, result).Inc()
}

func SetLastRefresh(component string, t time.Time) {
	LastRefreshTimestamp.WithLabelValues(component).Set(float64(t.Unix()))
}

func SetPortfolioCount(n int) {
	PortfolioCount.Set(float64(n))
}
