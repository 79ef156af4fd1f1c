// Package hybrid registers the "hybrid" cache strategy: a hot in-memory
// LRU backed by the disk strategy, per spec.md §4.3. Reads promote disk
// hits into the hot tier; writes go to both.
package hybrid

import (
	"context"
	"time"

	"github.com/taskflow-engine/orchestrator/internal/cache"
	"github.com/taskflow-engine/orchestrator/internal/cache/providers/disk"
	"github.com/taskflow-engine/orchestrator/internal/cache/providers/memory"
)

func init() {
	cache.Register("hybrid", func(cfg cache.Config) (cache.Cache, error) {
		return New(cfg)
	})
}

type Cache struct {
	hot  *memory.Cache
	cold *disk.Cache
}

func New(cfg cache.Config) (*Cache, error) {
	cold, err := disk.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Cache{hot: memory.New(cfg), cold: cold}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := c.hot.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	v, ok, err := c.cold.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	_ = c.hot.Put(ctx, key, v, 0)
	return v, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.hot.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.cold.Put(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.hot.Delete(ctx, key); err != nil {
		return err
	}
	return c.cold.Delete(ctx, key)
}

func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.cold.Keys(ctx)
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := c.hot.Clear(ctx); err != nil {
		return err
	}
	return c.cold.Clear(ctx)
}

func (c *Cache) Stats() cache.Stats {
	hot := c.hot.Stats()
	cold := c.cold.Stats()
	return cache.Stats{
		Strategy:      "hybrid",
		Hits:          hot.Hits + cold.Hits,
		Misses:        cold.Misses,
		Evictions:     hot.Evictions + cold.Evictions,
		Invalidations: hot.Invalidations + cold.Invalidations,
		Size:          cold.Size,
	}
}
