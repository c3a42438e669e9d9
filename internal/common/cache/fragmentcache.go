// internal/common/cache/fragmentcache.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FragmentCache stores rendered cost-code reference fragments keyed by
// (standard, query). Fragments are pure text derived from the catalog, so
// TTL eviction is the only invalidation needed.
type FragmentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFragmentCache(client *redis.Client, ttl time.Duration) *FragmentCache {
	return &FragmentCache{client: client, ttl: ttl}
}

func fragmentKey(standard, query string) string {
	return fmt.Sprintf("costcodes:fragment:%s:%s", standard, query)
}

// Get returns the cached fragment, or ("", nil) on a miss.
func (c *FragmentCache) Get(ctx context.Context, standard, query string) (string, error) {
	text, err := c.client.Get(ctx, fragmentKey(standard, query)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fragment cache get: %w", err)
	}
	return text, nil
}

func (c *FragmentCache) Set(ctx context.Context, standard, query, fragment string) error {
	if err := c.client.Set(ctx, fragmentKey(standard, query), fragment, c.ttl).Err(); err != nil {
		return fmt.Errorf("fragment cache set: %w", err)
	}
	return nil
}
