package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/domain/payment"
)

func TestMemoryViewCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewMemoryViewCache(time.Minute)
	c.now = func() time.Time { return now }

	view := &payment.CollectionView{GeneratedAt: now}
	require.NoError(t, c.Set(ctx, view))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, view, got)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryViewCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryViewCache(0)
	require.NoError(t, c.Set(ctx, &payment.CollectionView{}))
	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopViewCache_NeverHits(t *testing.T) {
	ctx := context.Background()
	var c payment.ViewCache = payment.NoopViewCache{}
	require.NoError(t, c.Set(ctx, &payment.CollectionView{}))

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
