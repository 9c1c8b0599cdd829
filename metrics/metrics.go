package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "civicbounty",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civicbounty",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	issueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "issues",
			Name:      "transitions_total",
			Help:      "Issue lifecycle operations that changed stored state.",
		},
		[]string{"operation", "status"},
	)

	pointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "ledger",
			Name:      "points_awarded_total",
			Help:      "Total points credited to profiles.",
		},
	)

	rewardStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "ledger",
			Name:      "reward_status_total",
			Help:      "Monetary rewards entering each status.",
		},
		[]string{"status", "source"},
	)

	aggregateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "ledger",
			Name:      "aggregate_update_failures_total",
			Help:      "Failed updates of a profile's cached reward total.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "civicbounty",
			Subsystem: "issues",
			Name:      "reports_rate_limited_total",
			Help:      "Issue reports rejected by the daily limit.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		issueTransitions,
		pointsAwarded,
		rewardStatus,
		aggregateFailures,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RequestStarted bumps the in-flight gauge and returns the func that records
// the finished request.
func RequestStarted() func(method, path string, status int) {
	start := time.Now()
	httpInFlight.Inc()
	return func(method, path string, status int) {
		httpInFlight.Dec()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordIssueTransition(operation, status string) {
	issueTransitions.WithLabelValues(operation, status).Inc()
}

func RecordPointsAwarded(points int) {
	if points > 0 {
		pointsAwarded.Add(float64(points))
	}
}

// RecordRewardStatus counts a reward entering status. source is "system" or
// "staff".
func RecordRewardStatus(status, source string) {
	rewardStatus.WithLabelValues(status, source).Inc()
}

func RecordAggregateFailure() {
	aggregateFailures.Inc()
}

func RecordRateLimited() {
	rateLimited.Inc()
}
