package hybrid

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/orchestrator/internal/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(cache.Config{Root: filepath.Join(t.TempDir(), "hybrid-cache")})
	require.NoError(t, err)
	return c
}

func TestHybridCache_PutPopulatesBothTiers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), 0))

	hotVal, hotOK, _ := c.hot.Get(ctx, "k")
	assert.True(t, hotOK)
	assert.Equal(t, []byte("v"), hotVal)

	coldVal, coldOK, _ := c.cold.Get(ctx, "k")
	assert.True(t, coldOK)
	assert.Equal(t, []byte("v"), coldVal)
}

func TestHybridCache_ColdHitPromotesToHot(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Write directly to cold, bypassing the hot tier.
	require.NoError(t, c.cold.Put(ctx, "k", []byte("v"), 0))

	_, hotOK, _ := c.hot.Get(ctx, "k")
	assert.False(t, hotOK, "not promoted yet")

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, hotOK, _ = c.hot.Get(ctx, "k")
	assert.True(t, hotOK, "cold hit should promote into hot tier")
}

func TestHybridCache_DeleteRemovesFromBothTiers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestHybridCache_Registered(t *testing.T) {
	assert.Contains(t, cache.List(), "hybrid")
}
