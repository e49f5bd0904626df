package contentcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"filepipe/internal/constants"
)

// ErrNotFound marks a cache-key fetch that found nothing, typically because
// the TTL expired before the consumer got to it.
var ErrNotFound = errors.New("content not found in cache")

// Cache stages bulk file content between pipeline stages so messages carry
// only a key. Each key has one producer and one consumer; the consumer
// deletes the key after use.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = constants.DefaultContentTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Put stores content under a fresh key with the given prefix and returns
// the key.
func (c *Cache) Put(ctx context.Context, prefix string, content []byte) (string, error) {
	key := prefix + uuid.NewString()
	if err := c.client.Set(ctx, key, content, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store content under %s: %w", key, err)
	}
	return key, nil
}

// Get fetches content by key. A missing key returns ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content for %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a consumed key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete content key %s: %w", key, err)
	}
	return nil
}
