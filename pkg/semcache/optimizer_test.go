package semcache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Sternrassler/semantic-cache/pkg/store"
)

// backdate rewrites an entry's creation time, for TTL tests.
func backdate(t *testing.T, c *Cache, text string, metadata map[string]any, age time.Duration) {
	t.Helper()

	key := c.keyFn(text, metadata)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		t.Fatalf("No entry for %q to backdate", text)
	}
	entry.entry.CreatedAt = time.Now().Add(-age)
}

func TestOptimizeCache_EvictsExpired(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	mustCache(t, c, "stale cached request", nil, "stale")
	mustCache(t, c, "fresh unrelated request words", nil, "fresh")
	backdate(t, c, "stale cached request", nil, 25*time.Hour)

	if err := c.OptimizeCache(ctx); err != nil {
		t.Fatalf("OptimizeCache failed: %v", err)
	}

	if c.Len() != 1 {
		t.Fatalf("Index has %d entries, want 1", c.Len())
	}

	// Store side removed too
	staleKey := c.keyFn("stale cached request", nil)
	if _, err := c.store.Get(ctx, staleKey); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Store still has evicted entry: %v", err)
	}
	freshKey := c.keyFn("fresh unrelated request words", nil)
	if _, err := c.store.Get(ctx, freshKey); err != nil {
		t.Errorf("Store lost surviving entry: %v", err)
	}
}

func TestOptimizeCache_TTLPostcondition(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	texts := []string{
		"first aged entry words",
		"second aged entry tokens",
		"third aged entry items",
	}
	for i, text := range texts {
		mustCache(t, c, text, nil, "r")
		backdate(t, c, text, nil, time.Duration(25+i)*time.Hour)
	}

	if err := c.OptimizeCache(ctx); err != nil {
		t.Fatalf("OptimizeCache failed: %v", err)
	}

	// No surviving entry older than the TTL
	for _, cand := range c.snapshot() {
		if cand.entry.IsExpired(c.config.EntryTTL) {
			t.Errorf("Entry %q survived optimization at age %v", cand.entry.RequestText, cand.entry.Age())
		}
	}
	if c.Len() != 0 {
		t.Errorf("Index has %d entries, want 0", c.Len())
	}
}

func TestOptimizeCache_RefreshScores(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	// Two identical texts (similarity 1.0) and one disjoint text
	seedEntry(t, c, "shared request text", map[string]any{"v": 1}, "a")
	seedEntry(t, c, "shared request text", map[string]any{"v": 2}, "b")
	seedEntry(t, c, "wholly disjoint words here", nil, "c")

	if err := c.OptimizeCache(ctx); err != nil {
		t.Fatalf("OptimizeCache failed: %v", err)
	}

	// Each "shared" entry: mean(1.0, 0.0) = 0.5; disjoint entry: mean(0, 0) = 0
	for _, cand := range c.snapshot() {
		var want float64
		if cand.entry.RequestText == "shared request text" {
			want = 0.5
		}
		if math.Abs(cand.entry.SimilarityScore-want) > 1e-9 {
			t.Errorf("Entry %q score = %v, want %v",
				cand.entry.RequestText, cand.entry.SimilarityScore, want)
		}
	}
}

func TestOptimizeCache_SingleEntryScoreZero(t *testing.T) {
	c := newTestCache(t, 0)

	mustCache(t, c, "lonely entry", nil, "r")

	if err := c.OptimizeCache(context.Background()); err != nil {
		t.Fatalf("OptimizeCache failed: %v", err)
	}

	snapshot := c.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("Index has %d entries, want 1", len(snapshot))
	}
	if snapshot[0].entry.SimilarityScore != 0.0 {
		t.Errorf("Single entry score = %v, want 0.0", snapshot[0].entry.SimilarityScore)
	}
}

func TestOptimizeCache_StoreFailureContinues(t *testing.T) {
	fs := &failStore{Store: store.NewMemory()}
	c, err := New(DefaultConfig(fs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	mustCache(t, c, "expired entry words", nil, "r")
	backdate(t, c, "expired entry words", nil, 25*time.Hour)

	fs.failRemove = true
	if err := c.OptimizeCache(context.Background()); err != nil {
		t.Fatalf("OptimizeCache returned error on store failure: %v", err)
	}

	// Index entry evicted regardless; the store self-expires via its TTL
	if c.Len() != 0 {
		t.Errorf("Index has %d entries, want 0", c.Len())
	}
}

func TestOptimizeCache_Cancelled(t *testing.T) {
	c := newTestCache(t, 0)

	mustCache(t, c, "some entry", nil, "r")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.OptimizeCache(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunMaintenance_StopsOnCancel(t *testing.T) {
	c := newTestCache(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunMaintenance(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunMaintenance did not stop on context cancellation")
	}
}
