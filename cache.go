package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	intcache "github.com/taskflow-engine/orchestrator/internal/cache"
	_ "github.com/taskflow-engine/orchestrator/internal/cache/providers/disk"
	_ "github.com/taskflow-engine/orchestrator/internal/cache/providers/hybrid"
	_ "github.com/taskflow-engine/orchestrator/internal/cache/providers/memory"
	_ "github.com/taskflow-engine/orchestrator/internal/cache/providers/noop"
)

// CacheConfig selects and configures the result cache a Config carries.
type CacheConfig struct {
	Strategy            string // "none" | "memory" | "disk" | "hybrid"
	TTL                 time.Duration
	MaxSize             int
	DiskRoot            string
	IncludeDependencies bool
}

// DefaultCacheConfig disables caching, matching the teacher's posture of
// making every optional subsystem safe-by-default.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Strategy: "none"}
}

// resultCache wraps an internal/cache.Cache with the Output envelope
// serialization, the task-id secondary index, and the hit/miss/eviction
// statistics §4.3 requires to be exposed.
type resultCache struct {
	backend             intcache.Cache
	index               *cacheIndex
	strategy            string
	includeDependencies bool
	ttl                 time.Duration
}

func newResultCache(cfg CacheConfig) (*resultCache, error) {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = "none"
	}
	backend, err := intcache.New(strategy, intcache.Config{
		TTL:     cfg.TTL,
		MaxSize: cfg.MaxSize,
		Root:    cfg.DiskRoot,
	})
	if err != nil {
		return nil, err
	}
	return &resultCache{
		backend:             backend,
		index:               newCacheIndex(),
		strategy:            strategy,
		includeDependencies: cfg.IncludeDependencies,
		ttl:                 cfg.TTL,
	}, nil
}

// lookup computes the cache key for t (folding in dependency outputs when
// configured) and attempts a Get. It returns the key regardless of outcome
// so the caller can Put under it after running the task.
func (c *resultCache) lookup(ctx context.Context, t *TaskDefinition, depOutputs map[string]Output) (key string, output *Output, hit bool, err error) {
	var depSerials []string
	if c.includeDependencies {
		for _, dep := range t.DependsOn {
			raw, err := json.Marshal(depOutputs[dep])
			if err != nil {
				return "", nil, false, err
			}
			depSerials = append(depSerials, string(raw))
		}
	}

	key, err = deriveCacheKey(t, c.includeDependencies, depSerials)
	if err != nil {
		return "", nil, false, err
	}

	raw, found, err := c.backend.Get(ctx, key)
	if err != nil || !found {
		return key, nil, false, err
	}

	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return key, nil, false, nil
	}
	return key, &out, true, nil
}

// store Puts output under key and records key in the secondary index under
// task's own id and, when dependency outputs were folded into the key,
// under every dependency id too — so invalidating a dependency also drops
// entries whose key depended on it.
func (c *resultCache) store(ctx context.Context, task *TaskDefinition, key string, output Output) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return err
	}
	if err := c.backend.Put(ctx, key, raw, c.ttl); err != nil {
		return err
	}
	c.index.record(task.ID, key)
	if c.includeDependencies {
		for _, dep := range task.DependsOn {
			c.index.record(dep, key)
		}
	}
	return nil
}

// invalidate removes every entry derived using taskID.
func (c *resultCache) invalidate(ctx context.Context, taskID string) error {
	for _, key := range c.index.keysFor(taskID) {
		if err := c.backend.Delete(ctx, key); err != nil {
			return err
		}
	}
	c.index.forget(taskID)
	return nil
}

func (c *resultCache) clear(ctx context.Context) error {
	c.index.clear()
	return c.backend.Clear(ctx)
}

// CacheStats reports the result cache's hit/miss/eviction counters.
type CacheStats struct {
	Strategy      string
	Hits          int64
	Misses        int64
	Evictions     int64
	Invalidations int64
	Size          int
	HitRate       float64
}

func (c *resultCache) stats() CacheStats {
	sp, ok := c.backend.(intcache.StatsProvider)
	if !ok {
		return CacheStats{Strategy: c.strategy}
	}
	s := sp.Stats()
	return CacheStats{
		Strategy:      s.Strategy,
		Hits:          s.Hits,
		Misses:        s.Misses,
		Evictions:     s.Evictions,
		Invalidations: s.Invalidations,
		Size:          s.Size,
		HitRate:       s.HitRate(),
	}
}
