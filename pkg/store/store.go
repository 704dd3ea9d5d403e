// Package store provides the exact-match response store backing the
// semantic cache. Implementations must be safe for concurrent use; the
// cache orchestrator never holds its own lock across store calls.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested key was not found in the store.
	ErrNotFound = errors.New("store: key not found")
)

// Store is an exact-match key/value store for cached responses.
//
// Get returns ErrNotFound when the key is absent or expired. Set stores a
// response under key; a non-zero ttl bounds the entry's server-side
// lifetime. Remove is idempotent: removing an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, response []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}
