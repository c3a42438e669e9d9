// internal/common/cache/pagecache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"takeoff-workers/internal/models"
)

// PageImageCache stores resolved plan-page image references in Redis so
// repeated review runs against the same takeoff do not re-resolve them.
type PageImageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageImageCache(client *redis.Client, ttl time.Duration) *PageImageCache {
	return &PageImageCache{client: client, ttl: ttl}
}

func pageKey(takeoffID string) string {
	return fmt.Sprintf("takeoff:pages:%s", takeoffID)
}

// Get returns the cached pages for a takeoff, or (nil, nil) on a miss.
func (c *PageImageCache) Get(ctx context.Context, takeoffID string) ([]models.PlanPage, error) {
	data, err := c.client.Get(ctx, pageKey(takeoffID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("page cache get: %w", err)
	}

	var pages []models.PlanPage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("page cache decode: %w", err)
	}
	return pages, nil
}

// Set stores the pages for a takeoff with the configured TTL.
func (c *PageImageCache) Set(ctx context.Context, takeoffID string, pages []models.PlanPage) error {
	data, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("page cache encode: %w", err)
	}
	if err := c.client.Set(ctx, pageKey(takeoffID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("page cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached pages for a takeoff.
func (c *PageImageCache) Invalidate(ctx context.Context, takeoffID string) error {
	if err := c.client.Del(ctx, pageKey(takeoffID)).Err(); err != nil {
		return fmt.Errorf("page cache invalidate: %w", err)
	}
	return nil
}
