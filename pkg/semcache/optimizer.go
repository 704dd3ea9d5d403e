package semcache

import (
	"context"
	"time"
)

// OptimizeCache runs one maintenance pass: TTL eviction followed by a
// similarity score refresh over the surviving entries.
//
// Store failures during eviction are logged and do not abort the pass; the
// index entry is removed regardless, since the store carries its own
// matching server-side TTL and self-expires. The only error returned is
// ctx.Err() on cancellation.
func (c *Cache) OptimizeCache(ctx context.Context) error {
	startTime := time.Now()
	defer func() {
		OptimizeDuration.Observe(time.Since(startTime).Seconds())
	}()

	evicted, err := c.evictExpired(ctx)
	if err != nil {
		return err
	}

	refreshed, err := c.refreshScores(ctx)
	if err != nil {
		return err
	}

	c.logger.Info().
		Int("evicted", evicted).
		Int("refreshed", refreshed).
		Dur("duration", time.Since(startTime)).
		Msg("Optimization pass complete")
	return nil
}

// evictExpired removes every entry older than the configured TTL from both
// structures.
func (c *Cache) evictExpired(ctx context.Context) (int, error) {
	snapshot := c.snapshot()

	evicted := 0
	for _, cand := range snapshot {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		if !cand.entry.IsExpired(c.config.EntryTTL) {
			continue
		}

		if err := c.store.Remove(ctx, cand.entry.Key); err != nil {
			// Best-effort: the store entry expires on its own TTL.
			c.logger.Warn().Err(err).Str("key", cand.entry.Key).Msg("Store remove failed during eviction")
		}

		if c.removeIfUnchanged(cand.entry.Key, cand.seq) {
			Evictions.WithLabelValues("ttl").Inc()
			evicted++
			c.logger.Debug().
				Str("key", cand.entry.Key).
				Dur("age", cand.entry.Age()).
				Msg("Evicted expired entry")
		}
	}
	return evicted, nil
}

// refreshScores recomputes each surviving entry's similarity score as its
// mean pairwise similarity to every other surviving entry. O(n²) over the
// index; acceptable because the index is bounded and maintenance is
// infrequent.
func (c *Cache) refreshScores(ctx context.Context) (int, error) {
	snapshot := c.snapshot()
	n := len(snapshot)
	if n == 0 {
		return 0, nil
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if n == 1 {
			break
		}
		sum := 0.0
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sum += c.scorer.Score(snapshot[i].entry.RequestText, snapshot[j].entry.RequestText)
		}
		scores[i] = sum / float64(n-1)
	}

	// Commit, skipping entries replaced since the snapshot.
	c.mu.Lock()
	refreshed := 0
	for i, cand := range snapshot {
		existing, ok := c.entries[cand.entry.Key]
		if !ok || existing.seq != cand.seq {
			continue
		}
		existing.entry.SimilarityScore = scores[i]
		refreshed++
	}
	c.mu.Unlock()

	return refreshed, nil
}

// RunMaintenance invokes OptimizeCache every interval until ctx is
// cancelled. Intended to be run by the hosting service:
//
//	go cache.RunMaintenance(ctx, time.Hour)
func (c *Cache) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", interval).Msg("Maintenance loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Maintenance loop stopped")
			return
		case <-ticker.C:
			if err := c.OptimizeCache(ctx); err != nil {
				// Only cancellation reaches here; the loop exits next select.
				c.logger.Debug().Err(err).Msg("Optimization pass interrupted")
			}
		}
	}
}
