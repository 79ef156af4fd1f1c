package noop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/orchestrator/internal/cache"
)

func TestNoopCache_AlwaysMisses(t *testing.T) {
	c, err := cache.New("none", cache.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopCache_Registered(t *testing.T) {
	assert.Contains(t, cache.List(), "none")
}
