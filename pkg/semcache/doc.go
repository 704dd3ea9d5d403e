// Package semcache provides a semantic response cache for expensive,
// non-deterministic generation calls (e.g. model invocations).
//
// The cache coordinates two structures: an exact-match key/value store
// (pkg/store) and an in-memory similarity index. Lookups try the exact
// key first, then fall back to the most similar indexed request above a
// threshold, and only then invoke the caller-supplied compute function.
// Concurrent misses for the same canonical key are collapsed into a single
// compute invocation (single-flight).
//
// # Basic Usage
//
//	// Create Redis-backed store
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	responseStore := store.NewRedis(redisClient)
//
//	// Create cache
//	cache, err := semcache.New(semcache.DefaultConfig(responseStore))
//	if err != nil {
//		return err
//	}
//
//	// Get or compute
//	req := semcache.Request{
//		Text:     "generate unit tests for Order entity",
//		Metadata: map[string]any{"type": "test-generation"},
//	}
//	resp, err := cache.GetOrCompute(ctx, req, func(ctx context.Context, req semcache.Request) ([]byte, error) {
//		return callModel(ctx, req.Text)
//	})
//
// # Similarity Lookups
//
//	// All cached responses similar to a request, best first
//	responses := cache.GetSimilarResponses(req, 0.8)
//
//	// Destroy entries matching a request
//	removed := cache.InvalidateSimilar(ctx, req, 0.9)
//
// # Maintenance
//
//	// One pass: TTL eviction, then similarity score refresh
//	if err := cache.OptimizeCache(ctx); err != nil {
//		return err
//	}
//
//	// Or run periodically until ctx is cancelled
//	go cache.RunMaintenance(ctx, time.Hour)
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - semcache_lookups_total{result} - Lookups by outcome (exact_hit, similarity_hit, miss)
//   - semcache_compute_total{outcome} - Compute invocations by outcome
//   - semcache_singleflight_shared_total - Callers served by another caller's compute
//   - semcache_entries - Current similarity index size
//   - semcache_evictions_total{reason} - Entries removed (ttl, invalidated)
//   - semcache_lookup_duration_seconds - GetOrCompute duration
//
// # Consistency
//
// Every key in the similarity index has a corresponding store entry and
// vice versa; insert and removal apply to both structures or neither.
// The index mutex is never held across store or compute I/O.
package semcache
