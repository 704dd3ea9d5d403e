package semcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups tracks GetOrCompute lookups by outcome.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_lookups_total",
			Help: "Total number of cache lookups by outcome",
		},
		[]string{"result"}, // "exact_hit", "similarity_hit", "miss"
	)

	// ComputeInvocations tracks compute function invocations by outcome.
	ComputeInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_compute_total",
			Help: "Total number of compute function invocations by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	// SingleflightShared tracks callers that attached to an in-flight
	// compute instead of starting their own.
	SingleflightShared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "semcache_singleflight_shared_total",
			Help: "Total number of callers served by another caller's in-flight compute",
		},
	)

	// IndexEntries tracks the current similarity index size.
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "semcache_entries",
			Help: "Current number of entries in the similarity index",
		},
	)

	// Evictions tracks entries removed by reason.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semcache_evictions_total",
			Help: "Total number of cache entries removed",
		},
		[]string{"reason"}, // "ttl", "invalidated"
	)

	// LookupDuration tracks GetOrCompute duration, including compute time
	// on misses.
	LookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semcache_lookup_duration_seconds",
			Help:    "GetOrCompute duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// OptimizeDuration tracks full optimization pass duration.
	OptimizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "semcache_optimize_duration_seconds",
			Help:    "OptimizeCache pass duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
	)
)
