package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for embedding the cache without external
// infrastructure, and for tests. Entries expire lazily on Get.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	response  []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get retrieves a response by key.
// Returns ErrNotFound if the key doesn't exist or has expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate the stored payload.
	out := make([]byte, len(entry.response))
	copy(out, entry.response)
	return out, nil
}

// Set stores a response under key. A ttl of zero stores without expiry.
func (m *Memory) Set(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if ttl < 0 {
		return nil
	}

	stored := make([]byte, len(response))
	copy(stored, response)

	entry := memoryEntry{response: stored}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	StoreBytesWritten.WithLabelValues("memory").Add(float64(len(response)))
	return nil
}

// Remove deletes a response. Removing an absent key is not an error.
func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live entries (expired entries may be counted
// until their next Get).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
