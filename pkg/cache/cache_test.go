package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Set(ctx, "k", "v", 0))
	val, ok, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Incr(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	n, err := c.Incr(ctx, "gen")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, _ = c.Incr(ctx, "gen")
	assert.Equal(t, int64(2), n)

	val, ok, _ := c.Get(ctx, "gen")
	assert.True(t, ok)
	assert.Equal(t, "2", val)
}

func TestMemoryCache_SetPurgesExpired(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.NoError(t, c.Set(ctx, "live", "v", 24*time.Hour))
	assert.NoError(t, c.Set(ctx, "forever", "v", 0))
	for i := 0; i < 1000; i++ {
		assert.NoError(t, c.Set(ctx, "gen:"+formatInt(int64(i)), "v", time.Millisecond))
		now = now.Add(time.Second)
	}

	assert.LessOrEqual(t, c.Len(), minSweepSize)
	_, ok, _ := c.Get(ctx, "live")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCache_SweepThresholdTracksLiveEntries(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	for i := 0; i < 3*minSweepSize; i++ {
		assert.NoError(t, c.Set(ctx, "k"+formatInt(int64(i)), "v", 0))
	}
	assert.Equal(t, 3*minSweepSize, c.Len())
	assert.GreaterOrEqual(t, c.sweepAt, c.Len())
}
