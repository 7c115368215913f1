package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	tileRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_retries_total",
			Help: "Tile reload attempts after a tile error, by outcome.",
		},
		[]string{"outcome"},
	)

	reconcileOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_ops_total",
			Help: "Reconciler transitions applied to the map surface.",
		},
		[]string{"op"},
	)

	renderersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderers_active",
			Help: "Renderer objects currently attached to the map surface.",
		},
	)

	feedCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_results_total",
			Help: "Vector feed cache results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_seconds",
			Help:    "Latency of cache store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "ok"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveTileRetry(outcome string) {
	tileRetriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveReconcileOp(op string) {
	reconcileOpsTotal.WithLabelValues(op).Inc()
}

func SetRenderersActive(n int) {
	renderersActive.Set(float64(n))
}

func IncFeedCacheHit()  { feedCacheResults.WithLabelValues("hit").Inc() }
func IncFeedCacheMiss() { feedCacheResults.WithLabelValues("miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	ok := "true"
	if err != nil {
		ok = "false"
	}
	cacheOpSeconds.WithLabelValues(op, ok).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
