package semcache

import (
	"sort"
	"sync/atomic"
)

// Lookup outcomes recorded for hit-rate statistics.
const (
	resultExactHit      = "exact_hit"
	resultSimilarityHit = "similarity_hit"
	resultMiss          = "miss"
)

// lookupStats holds real lookup counters, incremented on every
// GetOrCompute outcome.
type lookupStats struct {
	exactHits      atomic.Int64
	similarityHits atomic.Int64
	misses         atomic.Int64
}

// recordLookup increments the in-process counter and the Prometheus
// counter for a lookup outcome.
func (c *Cache) recordLookup(result string) {
	switch result {
	case resultExactHit:
		c.stats.exactHits.Add(1)
	case resultSimilarityHit:
		c.stats.similarityHits.Add(1)
	case resultMiss:
		c.stats.misses.Add(1)
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// Statistics is an aggregate report over the cache contents and lookup
// history.
type Statistics struct {
	// TotalEntries is the current similarity index size.
	TotalEntries int `json:"total_entries"`

	// AverageResponseSize is the mean cached response payload size in bytes.
	AverageResponseSize float64 `json:"average_response_size"`

	// MostCommonRequestTypes lists the up-to-5 most frequent request type
	// tags (metadata "type", bucket "unknown" when absent), most frequent
	// first. Equal frequencies order alphabetically.
	MostCommonRequestTypes []string `json:"most_common_request_types"`

	// CacheHitRate is hits (exact + similarity) over total lookups, in
	// [0,1]. Zero when no lookups have been recorded.
	CacheHitRate float64 `json:"cache_hit_rate"`

	// AverageSimilarityScore is the mean of the entries' rolling
	// similarity scores, as of the last optimization pass.
	AverageSimilarityScore float64 `json:"average_similarity_score"`
}

// GetStatistics computes statistics over a snapshot of the index.
func (c *Cache) GetStatistics() Statistics {
	snapshot := c.snapshot()

	stats := Statistics{
		TotalEntries: len(snapshot),
	}

	totalSize := 0
	totalScore := 0.0
	typeCounts := make(map[string]int)
	for _, cand := range snapshot {
		totalSize += len(cand.entry.Response)
		totalScore += cand.entry.SimilarityScore

		requestType := "unknown"
		if tag, ok := cand.entry.RequestMetadata["type"].(string); ok && tag != "" {
			requestType = tag
		}
		typeCounts[requestType]++
	}

	if len(snapshot) > 0 {
		stats.AverageResponseSize = float64(totalSize) / float64(len(snapshot))
		stats.AverageSimilarityScore = totalScore / float64(len(snapshot))
	}

	stats.MostCommonRequestTypes = topRequestTypes(typeCounts, 5)

	exact := c.stats.exactHits.Load()
	similar := c.stats.similarityHits.Load()
	misses := c.stats.misses.Load()
	if total := exact + similar + misses; total > 0 {
		stats.CacheHitRate = float64(exact+similar) / float64(total)
	}

	return stats
}

// topRequestTypes returns the up-to-limit most frequent type tags,
// frequency descending, alphabetical among equals.
func topRequestTypes(counts map[string]int, limit int) []string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	if len(types) > limit {
		types = types[:limit]
	}
	return types
}
