// Package memorycache is an in-memory implementation of retrycache.Cache.
package memorycache

import (
	"context"
	"sync"

	"github.com/hermod-chat/hermod/retrycache"
)

// Cache counts retries in a plain map guarded by a mutex. Counters live
// until Reset; memory growth is bounded by the driver resetting counters on
// successful decrypt.
type Cache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func New() *Cache {
	return &Cache{counters: make(map[string]int64)}
}

func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	c.counters[key]++
	n := c.counters[key]
	c.mu.Unlock()
	return n, nil
}

func (c *Cache) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.counters, key)
	c.mu.Unlock()
	return nil
}

var _ retrycache.Cache = (*Cache)(nil)
