package semcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/semantic-cache/pkg/similarity"
	"github.com/Sternrassler/semantic-cache/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default thresholds and TTL, used by DefaultConfig and by callers that
// want the standard cut-offs.
const (
	// DefaultSimilarityThreshold is the minimum similarity for a fallback
	// lookup hit in GetOrCompute.
	DefaultSimilarityThreshold = 0.8

	// DefaultInvalidateThreshold is the minimum similarity for
	// InvalidateSimilar to destroy an entry.
	DefaultInvalidateThreshold = 0.9

	// DefaultEntryTTL is the maximum entry age before TTL eviction.
	DefaultEntryTTL = 24 * time.Hour
)

var (
	// ErrNilCompute is returned when GetOrCompute is called without a
	// compute function.
	ErrNilCompute = errors.New("semcache: compute function is nil")
)

// ComputeFunc produces a response for a request on a full cache miss.
// Failures propagate to the GetOrCompute caller unmodified.
type ComputeFunc func(ctx context.Context, req Request) ([]byte, error)

// Config holds the cache configuration.
type Config struct {
	// Store is the exact-match response store (required).
	Store store.Store

	// Scorer computes request-text similarity (default: similarity.Jaccard).
	Scorer similarity.Scorer

	// KeyFunc derives canonical keys (default: CanonicalKey).
	KeyFunc KeyFunc

	// SimilarityThreshold is the minimum similarity for the fallback
	// lookup in GetOrCompute (default: 0.8).
	SimilarityThreshold float64

	// EntryTTL is the maximum entry age before eviction during
	// optimization (default: 24h). Also applied as server-side TTL on the
	// store so both structures expire in step.
	EntryTTL time.Duration
}

// DefaultConfig returns a safe default configuration for the given store.
func DefaultConfig(s store.Store) Config {
	return Config{
		Store:               s,
		Scorer:              similarity.NewJaccard(),
		KeyFunc:             CanonicalKey,
		SimilarityThreshold: DefaultSimilarityThreshold,
		EntryTTL:            DefaultEntryTTL,
	}
}

// Cache coordinates the exact-match store and the in-memory similarity
// index. It is safe for concurrent use.
//
// A single mutex guards the similarity index and the per-key in-flight
// table. The mutex is never held across store or compute I/O: mutations
// acquire, snapshot, release, perform I/O, then re-acquire to commit.
type Cache struct {
	store  store.Store
	scorer similarity.Scorer
	keyFn  KeyFunc
	config Config
	logger zerolog.Logger

	mu       sync.RWMutex
	entries  map[string]*indexEntry
	nextSeq  uint64
	inflight map[string]*inflightCall

	stats lookupStats
}

// indexEntry pairs a cache entry with its insertion sequence number. The
// sequence breaks similarity ties (earliest inserted wins) and detects
// concurrent replacement during copy-then-commit mutations.
type indexEntry struct {
	entry CacheEntry
	seq   uint64
}

// inflightCall is the single-flight marker for one canonical key. Waiters
// block on done; response/err are written exactly once before done closes.
type inflightCall struct {
	done     chan struct{}
	response []byte
	err      error
}

// New creates a cache from the given configuration.
func New(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if cfg.Scorer == nil {
		cfg.Scorer = similarity.NewJaccard()
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = CanonicalKey
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("similarity_threshold must be in [0,1] (got %v)", cfg.SimilarityThreshold)
	}
	if cfg.EntryTTL == 0 {
		cfg.EntryTTL = DefaultEntryTTL
	}
	if cfg.EntryTTL < 0 {
		return nil, fmt.Errorf("entry_ttl must be positive (got %v)", cfg.EntryTTL)
	}

	logger := log.With().Str("component", "cache").Logger()

	return &Cache{
		store:    cfg.Store,
		scorer:   cfg.Scorer,
		keyFn:    cfg.KeyFunc,
		config:   cfg,
		logger:   logger,
		entries:  make(map[string]*indexEntry),
		inflight: make(map[string]*inflightCall),
	}, nil
}

// GetOrCompute returns the cached response for req, computing and caching
// it on a full miss.
//
// Lookup order: exact match in the store, then the most similar indexed
// request scoring at or above the configured similarity threshold (ties
// broken by earliest insertion), then compute. Concurrent misses for the
// same canonical key share a single compute invocation; late arrivals
// block on the in-flight result.
//
// Compute failures and write-path store failures propagate to the caller;
// neither leaves a partial entry in either structure. Cancelling ctx while
// waiting on another caller's compute returns ctx.Err() without disturbing
// the in-flight computation.
func (c *Cache) GetOrCompute(ctx context.Context, req Request, compute ComputeFunc) ([]byte, error) {
	if compute == nil {
		return nil, ErrNilCompute
	}

	startTime := time.Now()
	defer func() {
		LookupDuration.Observe(time.Since(startTime).Seconds())
	}()

	key := c.keyFn(req.Text, req.Metadata)

	// Step 1: exact match
	response, err := c.store.Get(ctx, key)
	if err == nil {
		c.recordLookup(resultExactHit)
		c.logger.Debug().Str("key", key).Msg("Exact cache hit")
		return response, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		// Degrade to a miss; the compute path still works without the store.
		c.logger.Warn().Err(err).Str("key", key).Msg("Store get error")
	}

	// Step 2: similarity fallback
	if response, score, ok := c.bestMatch(req.Text, c.config.SimilarityThreshold); ok {
		c.recordLookup(resultSimilarityHit)
		c.logger.Debug().
			Str("key", key).
			Float64("score", score).
			Float64("threshold", c.config.SimilarityThreshold).
			Msg("Similarity cache hit")
		return response, nil
	}

	c.recordLookup(resultMiss)

	// Step 3: single-flight registration, guarded by the index mutex.
	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		// Another flight committed between our store miss and now.
		response := cloneBytes(existing.entry.Response)
		c.mu.Unlock()
		return response, nil
	}
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		SingleflightShared.Inc()
		select {
		case <-call.done:
			return call.response, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	// Step 4: compute (leader only, no lock held)
	response, err = compute(ctx, req)
	if err != nil {
		ComputeInvocations.WithLabelValues("error").Inc()
		c.release(key, call, nil, err)
		return nil, err
	}
	ComputeInvocations.WithLabelValues("success").Inc()

	// Step 5: write-through. A store failure here is correctness-critical:
	// an uncached result means duplicate expensive work later.
	if serr := c.store.Set(ctx, key, response, c.config.EntryTTL); serr != nil {
		werr := fmt.Errorf("cache computed response: %w", serr)
		c.logger.Error().Err(serr).Str("key", key).Msg("Store set failed on write path")
		c.release(key, call, nil, werr)
		return nil, werr
	}

	// Step 6: commit to the index and publish to waiters
	c.mu.Lock()
	c.insertLocked(key, req, response)
	call.response = response
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)

	c.logger.Debug().Str("key", key).Int("size", len(response)).Msg("Cached computed response")
	return response, nil
}

// GetSimilarResponses returns the responses of every entry whose request
// text scores at or above threshold against req.Text, ordered by
// similarity descending. Ties are broken by insertion order, earliest
// first; this tie-break is a documented policy, overridable by supplying a
// custom Scorer that never ties.
//
// Pure read: an empty index yields an empty result.
func (c *Cache) GetSimilarResponses(req Request, threshold float64) [][]byte {
	type match struct {
		response []byte
		score    float64
		seq      uint64
	}

	snapshot := c.snapshot()

	matches := make([]match, 0, len(snapshot))
	for _, cand := range snapshot {
		score := c.scorer.Score(req.Text, cand.entry.RequestText)
		if score >= threshold {
			matches = append(matches, match{
				response: cloneBytes(cand.entry.Response),
				score:    score,
				seq:      cand.seq,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].seq < matches[j].seq
	})

	responses := make([][]byte, len(matches))
	for i, m := range matches {
		responses[i] = m.response
	}
	return responses
}

// InvalidateSimilar permanently removes every entry whose request text
// scores at or above threshold against req.Text, from both the store and
// the index, and returns the number removed.
//
// Best-effort per entry: a store removal failure is logged and the entry
// is kept in both structures, preserving store/index consistency.
func (c *Cache) InvalidateSimilar(ctx context.Context, req Request, threshold float64) int {
	snapshot := c.snapshot()

	removed := 0
	for _, cand := range snapshot {
		score := c.scorer.Score(req.Text, cand.entry.RequestText)
		if score < threshold {
			continue
		}

		if err := c.store.Remove(ctx, cand.entry.Key); err != nil {
			c.logger.Warn().Err(err).Str("key", cand.entry.Key).Msg("Store remove failed during invalidation, keeping entry")
			continue
		}

		if c.removeIfUnchanged(cand.entry.Key, cand.seq) {
			Evictions.WithLabelValues("invalidated").Inc()
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info().
			Int("removed", removed).
			Float64("threshold", threshold).
			Msg("Invalidated similar entries")
	}
	return removed
}

// bestMatch scans the index for the highest-scoring entry at or above
// threshold. Among equal scores the earliest-inserted entry wins.
func (c *Cache) bestMatch(text string, threshold float64) ([]byte, float64, bool) {
	snapshot := c.snapshot()

	var (
		found     bool
		bestScore float64
		bestSeq   uint64
		bestResp  []byte
	)
	for _, cand := range snapshot {
		score := c.scorer.Score(text, cand.entry.RequestText)
		if score < threshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && cand.seq < bestSeq) {
			found = true
			bestScore = score
			bestSeq = cand.seq
			bestResp = cand.entry.Response
		}
	}
	if !found {
		return nil, 0, false
	}
	return cloneBytes(bestResp), bestScore, true
}

// insertLocked adds an entry to the index. Caller must hold c.mu. An
// existing entry under the same key is fully replaced, including CreatedAt
// and insertion sequence.
func (c *Cache) insertLocked(key string, req Request, response []byte) {
	c.entries[key] = &indexEntry{
		entry: CacheEntry{
			Key:             key,
			RequestText:     req.Text,
			RequestMetadata: req.Metadata,
			Response:        response,
			CreatedAt:       time.Now(),
		},
		seq: c.nextSeq,
	}
	c.nextSeq++
	IndexEntries.Set(float64(len(c.entries)))
}

// removeIfUnchanged deletes key from the index unless the entry was
// replaced since the caller's snapshot (sequence mismatch). Returns true
// if the entry was removed.
func (c *Cache) removeIfUnchanged(key string, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[key]
	if !ok || existing.seq != seq {
		return false
	}
	delete(c.entries, key)
	IndexEntries.Set(float64(len(c.entries)))
	return true
}

// snapshot copies the current index entries under a read lock so callers
// can score and iterate without blocking mutations. Entries are copied by
// value: the optimizer mutates SimilarityScore in place under the write
// lock, and snapshot holders must not observe that.
func (c *Cache) snapshot() []indexEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]indexEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the current number of indexed entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// release clears the in-flight marker for key and publishes the outcome to
// waiters. Used on compute or write-path failure so waiters are never
// stuck behind a dead flight.
func (c *Cache) release(key string, call *inflightCall, response []byte, err error) {
	c.mu.Lock()
	call.response = response
	call.err = err
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)
}

// cloneBytes copies b so cached payloads cannot be mutated through
// returned slices.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
