package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache implements ports.EventCache using Redis. It fronts the
// processed_events table so replayed payment notifications short-circuit
// without a database round trip.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a new Redis-backed event receipt cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "evt:",
	}
}

// Get retrieves a cached receipt by idempotency key.
// Returns nil, nil if the key does not exist.
func (c *EventCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis event cache get: %w", err)
	}
	return val, nil
}

// Set stores a receipt in the event cache with TTL.
func (c *EventCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis event cache set: %w", err)
	}
	return nil
}
