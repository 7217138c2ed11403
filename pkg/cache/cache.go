// Package cache implements a Redis-backed read-through cache for the
// "recent episodes" retrieval query, the highest-traffic read in the
// service, plus best-effort invalidation on ingest.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	goredis "github.com/redis/go-redis/v9"
)

const recentKeyPrefix = "nexusmem:recent:"

// Cache wraps a Redis client scoped to the recent-episodes cache.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// New connects to Redis per cfg. Returns (nil, nil) if caching is disabled.
func New(cfg *config.CacheConfig) (*Cache, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
	})
	return &Cache{client: client, ttl: cfg.TTL}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Ping verifies connectivity, for health checks.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func recentKey(limit int) string {
	return recentKeyPrefix + strconv.Itoa(limit)
}

// GetRecent implements retrieval.RecentCache. A false second return means
// cache miss — including when caching is disabled (c is nil) or Redis is
// unreachable: the caller always has a correct storage fallback.
func (c *Cache) GetRecent(ctx context.Context, limit int) ([]storage.Episode, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, recentKey(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Cache read failed", "error", err)
		}
		return nil, false
	}
	var episodes []storage.Episode
	if err := json.Unmarshal(raw, &episodes); err != nil {
		slog.Warn("Cache payload decode failed", "error", err)
		return nil, false
	}
	return episodes, true
}

// SetRecent implements retrieval.RecentCache. Failures are logged, never
// propagated — a cache write failure must not fail the read it's backing.
func (c *Cache) SetRecent(ctx context.Context, limit int, episodes []storage.Episode) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(episodes)
	if err != nil {
		slog.Warn("Cache payload encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, recentKey(limit), raw, c.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "error", err)
	}
}

// InvalidateRecent implements ingest.Invalidator by dropping every cached
// recent-episodes page (one key per distinct limit callers have requested).
func (c *Cache) InvalidateRecent(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, recentKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan recent keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
