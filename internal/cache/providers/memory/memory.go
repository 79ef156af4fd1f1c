// Package memory provides the bounded in-memory LRU cache strategy,
// registered under "memory". Adapted from the teacher's
// cache/providers/inmemory package: a doubly-linked list plus hash map for
// O(1) get/set/eviction, with lazy TTL expiry on access.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/taskflow-engine/orchestrator/internal/cache"
)

func init() {
	cache.Register("memory", func(cfg cache.Config) (cache.Cache, error) {
		return New(cfg), nil
	})
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Cache is a thread-safe, in-memory LRU cache with TTL-based expiration.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time

	hits, misses, evictions, invalidations int64
}

// New creates a Cache from cfg. A zero MaxSize means unbounded.
func New(cfg cache.Config) *Cache {
	return &Cache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		defaultTTL: cfg.TTL,
		maxSize:    cfg.MaxSize,
		now:        time.Now,
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	e := elem.Value.(*entry)
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.removeLocked(elem)
		c.misses++
		return nil, false, nil
	}
	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true, nil
}

func (c *Cache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.computeExpiry(ttl)

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	elem := c.order.PushFront(e)
	c.items[key] = elem

	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.evictLocked()
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
		c.invalidations++
	}
	return nil
}

func (c *Cache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cache.Stats{
		Strategy:      "memory",
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
		Size:          c.order.Len(),
	}
}

func (c *Cache) computeExpiry(ttl time.Duration) time.Time {
	if ttl < 0 {
		return time.Time{}
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *Cache) evictLocked() {
	back := c.order.Back()
	if back != nil {
		c.removeLocked(back)
		c.evictions++
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(elem)
}
