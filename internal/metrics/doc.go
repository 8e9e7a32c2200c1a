/*
Package metrics provides the proxy runtime's Prometheus instrumentation,
covering the inbound HTTP surface, outbound engine calls, security
enforcement, proxy handle lifecycle, cache, and database pools.

# Overview

Collector registers and records every metric via promauto's automatic
registration, so callers never manage a Registry by hand. Metrics are
namespaced and label-partitioned for per-engine and per-handle breakdowns
in Grafana.

# Core types

  - Collector: holds the Counter/Histogram/Gauge vectors, grouped by
    domain.

# Capabilities

  - HTTP: request count, duration, request/response size, grouped by
    method/path/status (status bucketed to 2xx/3xx/4xx/5xx).
  - Engine: request count, duration, token usage (prompt/completion),
    health up/down gauge, grouped by engine_id/model.
  - Security: denial count by reason, rate-limit rejection count by scope.
  - Proxy: active handle count by mode.
  - Cache: hit/miss counts by cache_type.
  - Database: open/idle connection gauges, query duration histogram,
    grouped by database/operation.
*/
package metrics
