package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/money"
)

func TestMemoryDueCacheExpiresEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryDueCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	board := &domain.DueBoard{
		BusinessID:       "biz",
		Customers:        []domain.CustomerDue{{CustomerID: "cus-1", Due: money.FromMajor(40)}},
		TotalOutstanding: money.FromMajor(40),
	}
	require.NoError(t, c.Set(ctx, "k", board, time.Minute))

	// Mutating the caller's value must not leak into the cache.
	board.Customers[0].Due = 0

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, money.FromMajor(40), got.Customers[0].Due)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDueCacheDelete(t *testing.T) {
	c := NewMemoryDueCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DueBoard{BusinessID: "biz"}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopDueCacheNeverHits(t *testing.T) {
	var c DueCache = NoopDueCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.DueBoard{}, time.Minute))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := c.Bump(ctx, "biz")
	require.NoError(t, err)
	assert.Zero(t, gen)
}

func TestMemoryDueCacheGenerations(t *testing.T) {
	c := NewMemoryDueCache()
	ctx := context.Background()

	gen, err := c.Generation(ctx, "biz")
	require.NoError(t, err)
	assert.Zero(t, gen)

	gen, err = c.Bump(ctx, "biz")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	gen, err = c.Generation(ctx, "biz")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	other, err := c.Generation(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, other)
}
