// Package cache wraps Redis as a TTL cache for read-heavy list queries and as
// the counter backend for rate limiting. Every operation degrades gracefully:
// a Redis outage means cache misses and fail-open rate limits, never a failed
// request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tobyv/vidrelay/config"
)

type Cache struct {
	client *redis.Client
	log    *slog.Logger
}

// Connect initializes the Redis client and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Cache{client: client, log: log}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Get unmarshals the cached value for key into dest. Misses and Redis errors
// both report false; the caller falls through to the store.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key with the given TTL, best effort.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the given keys. Called on writes that change the cached
// result set.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

// Count increments the fixed-window counter for key, setting the window's
// expiry on first increment. It returns the current count and the seconds
// until the window resets. ok is false when Redis is unavailable, in which
// case rate limiting fails open.
func (c *Cache) Count(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, ok bool) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		c.log.Warn("rate counter failed", "key", key, "error", err)
		return 0, 0, false
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			c.log.Warn("rate counter expire failed", "key", key, "error", err)
		}
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, true
}
