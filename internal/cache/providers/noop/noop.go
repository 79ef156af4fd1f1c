// Package noop registers the "none" cache strategy: every Get misses,
// every Put is discarded. Used when caching is disabled but the dispatcher
// still wants a uniform Cache to call.
package noop

import (
	"context"
	"time"

	"github.com/taskflow-engine/orchestrator/internal/cache"
)

func init() {
	cache.Register("none", func(cache.Config) (cache.Cache, error) {
		return noopCache{}, nil
	})
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (noopCache) Put(context.Context, string, []byte, time.Duration) error  { return nil }
func (noopCache) Delete(context.Context, string) error                      { return nil }
func (noopCache) Keys(context.Context) ([]string, error)                   { return nil, nil }
func (noopCache) Clear(context.Context) error                               { return nil }
