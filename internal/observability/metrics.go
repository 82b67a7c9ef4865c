package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Cache lookups by outcome. Watch for: null_hit growth (penetration attempts), stale spikes.
	CacheRequestsTotal *prometheus.CounterVec

	// Source-of-truth loads triggered by the cache. Watch for: load rate close to request rate.
	CacheLoadsTotal *prometheus.CounterVec

	// Asynchronous logical-expiration rebuilds by status.
	CacheRebuildsTotal *prometheus.CounterVec

	// Tasks currently queued for the rebuild pool.
	RebuildQueueDepth prometheus.Gauge

	// Admission gate results. Watch for: accepted far above configured stock (never expected).
	SeckillReserveTotal *prometheus.CounterVec

	// Order consumer outcomes per stream entry.
	OrdersConsumedTotal *prometheus.CounterVec

	// Lock acquisitions by lock family and result.
	LockAcquireTotal *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheRequestsTotal",
			Help: "Cache lookups by cache name and result (hit, miss, null_hit, stale)",
		},
		[]string{"cache", "result"},
	)
	CacheLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLoadsTotal",
			Help: "Loads from the source of truth triggered by cache misses",
		},
		[]string{"cache", "status"},
	)
	CacheRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheRebuildsTotal",
			Help: "Asynchronous cache rebuild tasks by status",
		},
		[]string{"status"},
	)
	RebuildQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cacheRebuildQueueDepth",
			Help: "Rebuild tasks waiting for a worker",
		},
	)
	SeckillReserveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seckillReserveTotal",
			Help: "Admission gate results",
		},
		[]string{"result"},
	)
	OrdersConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordersConsumedTotal",
			Help: "Order stream entries handled by outcome",
		},
		[]string{"outcome"},
	)
	LockAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockAcquireTotal",
			Help: "Distributed lock acquisition attempts by lock family and result",
		},
		[]string{"family", "result"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		CacheRequestsTotal, CacheLoadsTotal, CacheRebuildsTotal, RebuildQueueDepth,
		SeckillReserveTotal, OrdersConsumedTotal, LockAcquireTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

// MetricsHandler serves the private registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func Registry() *prometheus.Registry {
	return registry
}
