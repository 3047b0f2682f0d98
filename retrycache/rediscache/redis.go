// Package rediscache implements retrycache.Cache on Redis, letting several
// gateway processes pointed at the same account share retry counters.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hermod-chat/hermod/retrycache"
)

// Config contains configuration options for the Redis retry cache.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "hermod:retry:".
	KeyPrefix string

	// TTL bounds how long an untouched counter survives. Zero disables
	// expiry. Default: 10 minutes.
	TTL time.Duration
}

// Cache implements retrycache.Cache using Redis INCR.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func New(config Config) (*Cache, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "hermod:retry:"
	}
	if config.TTL == 0 {
		config.TTL = 10 * time.Minute
	}
	return &Cache{client: config.Client, keyPrefix: config.KeyPrefix, ttl: config.TTL}, nil
}

func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	rkey := c.keyPrefix + key
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	if c.ttl > 0 {
		pipe.Expire(ctx, rkey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr retry counter: %w", err)
	}
	return incr.Val(), nil
}

func (c *Cache) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset retry counter: %w", err)
	}
	return nil
}

var _ retrycache.Cache = (*Cache)(nil)
