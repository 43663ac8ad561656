package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"aqms-backend/internal/model"
)

const (
	versionKey   = "aqms:readings:version"
	listKeyFmt   = "aqms:readings:v%d:list:%d"
	pingDeadline = 3 * time.Second
)

// NewRedisClient returns a go-redis client for redisURL (e.g. redis://localhost:6379/0) after a ping.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingDeadline)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// ReadingsCache caches dashboard list responses. Invalidation bumps a version
// counter so stale list keys are never read again and simply expire.
type ReadingsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReadingsCache(client *redis.Client, ttl time.Duration) *ReadingsCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &ReadingsCache{client: client, ttl: ttl}
}

// Get looks up the page for limit under the current version. It also returns
// the key it consulted; on a miss the caller hands that key back to Set, so a
// page read before an Invalidate can only land under the version it belongs to.
// An empty key means the cache is unavailable. Any Redis error is a miss.
func (c *ReadingsCache) Get(ctx context.Context, limit int) ([]model.Reading, string, bool) {
	key, err := c.listKey(ctx, limit)
	if err != nil {
		slog.Warn("readings cache unavailable", "error", err)
		return nil, "", false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("readings cache get failed", "error", err)
		}
		return nil, key, false
	}

	var readings []model.Reading
	if err := json.Unmarshal(raw, &readings); err != nil {
		slog.Warn("readings cache entry corrupt", "key", key, "error", err)
		return nil, key, false
	}
	return readings, key, true
}

// Set stores readings under a key previously returned by Get.
func (c *ReadingsCache) Set(ctx context.Context, key string, readings []model.Reading) {
	if key == "" {
		return
	}

	raw, err := json.Marshal(readings)
	if err != nil {
		slog.Warn("readings cache encode failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("readings cache set failed", "error", err)
	}
}

func (c *ReadingsCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		slog.Warn("readings cache invalidate failed", "error", err)
	}
}

func (c *ReadingsCache) listKey(ctx context.Context, limit int) (string, error) {
	raw, err := c.client.Get(ctx, versionKey).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Sprintf(listKeyFmt, 0, limit), nil
	}
	if err != nil {
		return "", err
	}

	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse cache version: %w", err)
	}
	return fmt.Sprintf(listKeyFmt, version, limit), nil
}
