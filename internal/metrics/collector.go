// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns every Prometheus metric the proxy runtime exports.
type Collector struct {
	// HTTP (proxy-facing request metrics)
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Engine (outbound requests to ollama/vllm/lmstudio/llama.cpp)
	engineRequestsTotal   *prometheus.CounterVec
	engineRequestDuration *prometheus.HistogramVec
	engineTokensUsed      *prometheus.CounterVec
	engineHealthUp        *prometheus.GaugeVec

	// Security policy enforcement
	securityDenialsTotal *prometheus.CounterVec
	rateLimitRejections  *prometheus.CounterVec

	// Proxy handle lifecycle
	proxyHandlesActive *prometheus.GaugeVec

	// Cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector registers every metric under namespace using promauto, so
// callers never have to manage a Registry by hand.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the proxy listener",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.engineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of requests forwarded to a local engine",
		},
		[]string{"engine_id", "model", "status"},
	)

	c.engineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Engine request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"engine_id", "model"},
	)

	c.engineTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_tokens_total",
			Help:      "Total number of tokens reported by an engine",
		},
		[]string{"engine_id", "model", "type"}, // type: prompt, completion
	)

	c.engineHealthUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_health_up",
			Help:      "1 if the engine's last health check succeeded, 0 otherwise",
		},
		[]string{"engine_id"},
	)

	c.securityDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_denials_total",
			Help:      "Total number of requests denied by the security policy",
		},
		[]string{"reason"}, // e.g. invalid_key, ip_blocked, intrusion
	)

	c.rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by per-key/per-IP rate limiting",
		},
		[]string{"scope"}, // key, ip
	)

	c.proxyHandlesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_handles_active",
			Help:      "Number of proxy handles currently in the running state",
		},
		[]string{"mode"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one proxied HTTP request/response cycle.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordEngineRequest records one outbound call to a local engine.
func (c *Collector) RecordEngineRequest(engineID, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.engineRequestsTotal.WithLabelValues(engineID, model, status).Inc()
	c.engineRequestDuration.WithLabelValues(engineID, model).Observe(duration.Seconds())
	c.engineTokensUsed.WithLabelValues(engineID, model, "prompt").Add(float64(promptTokens))
	c.engineTokensUsed.WithLabelValues(engineID, model, "completion").Add(float64(completionTokens))
}

// RecordEngineHealth sets the up/down gauge for an engine's last probe.
func (c *Collector) RecordEngineHealth(engineID string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	c.engineHealthUp.WithLabelValues(engineID).Set(v)
}

// RecordSecurityDenial records a request rejected by the security pipeline.
func (c *Collector) RecordSecurityDenial(reason string) {
	c.securityDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimitRejection records a request dropped by the rate limiter.
func (c *Collector) RecordRateLimitRejection(scope string) {
	c.rateLimitRejections.WithLabelValues(scope).Inc()
}

// SetProxyHandlesActive reports the current count of running handles for mode.
func (c *Collector) SetProxyHandlesActive(mode string, count int) {
	c.proxyHandlesActive.WithLabelValues(mode).Set(float64(count))
}

// RecordCacheHit records a memoization cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a memoization cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections reports the current pool occupancy for database.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records a single database operation's duration.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
