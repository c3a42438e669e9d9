package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*PageImageCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewPageImageCache(client, ttl), mr
}

func TestPageImageCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	pages := []models.PlanPage{
		{PageNumber: 1, ImageURL: "https://plans.example.com/t-1/p1.png", MimeType: "image/png"},
		{PageNumber: 2, ImageURL: "https://plans.example.com/t-1/p2.png", MimeType: "image/png"},
	}

	require.NoError(t, cache.Set(ctx, "t-1", pages))

	got, err := cache.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, pages, got)
}

func TestPageImageCache_MissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)

	got, err := cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPageImageCache_ExpiresAfterTTL(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "t-2", []models.PlanPage{{PageNumber: 1, ImageURL: "u"}}))

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "t-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPageImageCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "t-3", []models.PlanPage{{PageNumber: 1, ImageURL: "u"}}))
	require.NoError(t, cache.Invalidate(ctx, "t-3"))

	got, err := cache.Get(ctx, "t-3")
	require.NoError(t, err)
	assert.Nil(t, got)
}
