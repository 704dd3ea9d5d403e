// Package metrics provides the centralized Prometheus metrics registry for
// the semantic cache. All metrics are defined in their respective packages
// (semcache, store) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the semantic cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/semcache):
//   - semcache_lookups_total{result} (Counter): Lookups by outcome (exact_hit, similarity_hit, miss)
//   - semcache_compute_total{outcome} (Counter): Compute invocations by outcome (success, error)
//   - semcache_singleflight_shared_total (Counter): Callers served by another caller's in-flight compute
//   - semcache_entries (Gauge): Current similarity index size
//   - semcache_evictions_total{reason} (Counter): Entries removed (ttl, invalidated)
//   - semcache_lookup_duration_seconds (Histogram): GetOrCompute duration
//   - semcache_optimize_duration_seconds (Histogram): OptimizeCache pass duration
//
// Store Metrics (pkg/store):
//   - semcache_store_errors_total{backend, operation} (Counter): Store operation errors
//   - semcache_store_bytes_written_total{backend} (Counter): Response payload bytes written
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(semcache_lookups_total{result=~".*_hit"}[5m])) /
//   sum(rate(semcache_lookups_total[5m]))
//
//   # Similarity Hit Share
//   rate(semcache_lookups_total{result="similarity_hit"}[5m]) /
//   sum(rate(semcache_lookups_total[5m]))
//
//   # Compute Error Rate
//   rate(semcache_compute_total{outcome="error"}[5m])
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(semcache_lookup_duration_seconds_bucket[5m]))
//
//   # Deduplicated Computes
//   rate(semcache_singleflight_shared_total[5m])
