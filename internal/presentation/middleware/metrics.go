package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Metrics returns a middleware that collects Prometheus metrics
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.status)

			// Normalize path to avoid high cardinality
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// normalizePath normalizes the path to reduce cardinality
func normalizePath(path string) string {
	// For now, return the path as-is
	// In production, you might want to replace UUIDs, IDs, etc.
	return path
}

// AggregatorMetrics holds Prometheus metrics for the leaderboard
// refresh cycle
type AggregatorMetrics struct {
	CyclesTotal        *prometheus.CounterVec
	CandidatesComputed prometheus.Counter
	CandidatesSkipped  prometheus.Counter
	CycleDuration      prometheus.Histogram
	LastRefreshTime    *prometheus.GaugeVec
	ErrorsTotal        prometheus.Counter
}

// NewAggregatorMetrics creates new aggregator metrics
func NewAggregatorMetrics() *AggregatorMetrics {
	return &AggregatorMetrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aggregator_refresh_cycles_total",
			Help: "Total number of leaderboard refresh cycles per window",
		}, []string{"window"}),
		CandidatesComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_candidates_computed_total",
			Help: "Total number of candidate rows computed across all cycles",
		}),
		CandidatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_candidates_skipped_total",
			Help: "Total number of candidates dropped by filters or failures",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_cycle_duration_seconds",
			Help:    "Time taken to refresh all leaderboard windows",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastRefreshTime: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aggregator_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh per window",
		}, []string{"window"}),
		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_errors_total",
			Help: "Total number of refresh errors",
		}),
	}
}
