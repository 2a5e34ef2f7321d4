// Package metrics exposes Prometheus collectors for the edge service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	notifyRequestsTotal        *prometheus.CounterVec
	notifyRelayTotal           *prometheus.CounterVec
	notifyCacheOperationsTotal *prometheus.CounterVec
	notifyPublishTotal         *prometheus.CounterVec
	relayRateLimitDelaySeconds prometheus.Histogram
	backgroundTasksInflight    prometheus.Gauge
	backgroundTaskPanicsTotal  *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)

		notifyRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_requests_total",
				Help: "Total number of notify requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		notifyRelayTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_relay_total",
				Help: "Total number of relay dispatches, labeled by result.",
			},
			[]string{"result"},
		)

		notifyCacheOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_cache_operations_total",
				Help: "Total number of dedup cache operations, labeled by op and result.",
			},
			[]string{"op", "result"},
		)

		notifyPublishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_publish_total",
				Help: "Total number of visit events published, labeled by result.",
			},
			[]string{"result"},
		)

		relayRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notify_relay_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting for the relay rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		backgroundTasksInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "background_tasks_inflight",
				Help: "Number of fire-and-forget tasks currently running.",
			},
		)

		backgroundTaskPanicsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_task_panics_total",
				Help: "Total number of recovered background task panics, labeled by task.",
			},
			[]string{"task"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveNotify counts a notify request by its outcome.
func ObserveNotify(outcome string) {
	notifyRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRelay counts a relay dispatch.
func ObserveRelay(result string) {
	notifyRelayTotal.WithLabelValues(result).Inc()
}

// ObserveCacheOp counts a dedup cache get or put.
func ObserveCacheOp(op, result string) {
	notifyCacheOperationsTotal.WithLabelValues(op, result).Inc()
}

// ObservePublish counts a visit event publish.
func ObservePublish(result string) {
	notifyPublishTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a relay rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	relayRateLimitDelaySeconds.Observe(duration.Seconds())
}

// IncBackgroundTasks increments the in-flight background task gauge.
func IncBackgroundTasks() {
	backgroundTasksInflight.Inc()
}

// DecBackgroundTasks decrements the in-flight background task gauge.
func DecBackgroundTasks() {
	backgroundTasksInflight.Dec()
}

// ObserveBackgroundPanic counts a recovered panic in the named task.
func ObserveBackgroundPanic(task string) {
	backgroundTaskPanicsTotal.WithLabelValues(task).Inc()
}
