package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"aqms-backend/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ReadingsCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewReadingsCache(client, ttl), mr
}

func TestReadingsCacheRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	_, key, ok := c.Get(ctx, 10)
	require.False(t, ok)
	require.NotEmpty(t, key)

	c.Set(ctx, key, []model.Reading{{ID: "r1", TS: 100, PM25: 12.5}})

	got, _, ok := c.Get(ctx, 10)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "r1", got[0].ID)
	require.InDelta(t, 12.5, got[0].PM25, 0.0001)

	_, other, ok := c.Get(ctx, 20)
	require.False(t, ok, "different limits use different keys")
	require.NotEqual(t, key, other)
}

func TestReadingsCacheInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	_, key, _ := c.Get(ctx, 10)
	c.Set(ctx, key, []model.Reading{{ID: "old"}})
	c.Invalidate(ctx)

	_, key, ok := c.Get(ctx, 10)
	require.False(t, ok)

	c.Set(ctx, key, []model.Reading{{ID: "new"}})
	got, _, ok := c.Get(ctx, 10)
	require.True(t, ok)
	require.Equal(t, "new", got[0].ID)
}

func TestReadingsCacheSetAfterConcurrentInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute)

	// A reader misses, an ingest invalidates, then the reader stores the page it loaded before the ingest.
	_, readerKey, ok := c.Get(ctx, 10)
	require.False(t, ok)
	c.Invalidate(ctx)
	c.Set(ctx, readerKey, []model.Reading{{ID: "old"}})

	_, currentKey, ok := c.Get(ctx, 10)
	require.False(t, ok, "a page from before the invalidate must not be served")
	require.NotEqual(t, readerKey, currentKey)
}

func TestReadingsCacheExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, 5*time.Second)

	_, key, _ := c.Get(ctx, 10)
	c.Set(ctx, key, []model.Reading{{ID: "r1"}})
	mr.FastForward(6 * time.Second)

	_, _, ok := c.Get(ctx, 10)
	require.False(t, ok)
}

func TestReadingsCacheMissWhenRedisDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newTestCache(t, time.Minute)

	_, key, _ := c.Get(ctx, 10)
	c.Set(ctx, key, []model.Reading{{ID: "r1"}})
	mr.Close()

	_, key, ok := c.Get(ctx, 10)
	require.False(t, ok)
	require.Empty(t, key)
	c.Set(ctx, key, []model.Reading{{ID: "r2"}})
}

func TestNewRedisClient(t *testing.T) {
	t.Parallel()

	_, err := NewRedisClient(context.Background(), "")
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())
}
