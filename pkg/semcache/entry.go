package semcache

import "time"

// Request is a generation request presented to the cache.
type Request struct {
	// Text is the natural-language request text used for similarity
	// matching and canonical key derivation.
	Text string `json:"text"`

	// Metadata carries request attributes that participate in the
	// canonical key (e.g. model name, temperature). The "type" entry, if
	// present, buckets the request in statistics.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CacheEntry is a cached response together with the request that produced
// it. Entries are immutable after insert; only SimilarityScore is updated,
// during optimization.
type CacheEntry struct {
	// Key is the canonical exact-match key.
	Key string `json:"key"`

	// RequestText is the original request text.
	RequestText string `json:"request_text"`

	// RequestMetadata is the original request metadata.
	RequestMetadata map[string]any `json:"request_metadata,omitempty"`

	// Response is the cached opaque response payload.
	Response []byte `json:"response"`

	// CreatedAt is when the entry was inserted.
	CreatedAt time.Time `json:"created_at"`

	// SimilarityScore is the rolling mean similarity of this entry to all
	// other live entries, refreshed during optimization. Advisory only:
	// lookup matches are always scored live against the incoming request.
	SimilarityScore float64 `json:"similarity_score"`
}

// Age returns how long ago the entry was created.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// IsExpired returns true if the entry is older than ttl.
func (e *CacheEntry) IsExpired(ttl time.Duration) bool {
	return e.Age() > ttl
}
