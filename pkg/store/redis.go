package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces cache entries in a shared Redis instance.
const keyPrefix = "semcache:"

// Redis is a Store backed by a Redis instance. Responses are stored as raw
// bytes under a namespaced key; TTL management is delegated to Redis so the
// store self-expires in step with the cache optimizer.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{client: client}
}

// Get retrieves a cached response by key.
// Returns ErrNotFound if the key doesn't exist or has expired.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		StoreErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores a response under key. A ttl of zero stores without expiry.
func (r *Redis) Set(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if ttl < 0 {
		// Already expired, don't store
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+key, response, ttl).Err(); err != nil {
		StoreErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	StoreBytesWritten.WithLabelValues("redis").Add(float64(len(response)))
	return nil
}

// Remove deletes a cached response. Removing an absent key is not an error.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		StoreErrors.WithLabelValues("redis", "remove").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
