package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/cache"
)

func TestTTL_SetGet(t *testing.T) {
	c := cache.NewTTL[string, int](8, time.Minute)

	c.Set("a", 1)
	val, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, val)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTL_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := cache.NewTTL(8, time.Minute, cache.WithClock[string, int](clock))

	c.Set("a", 1)

	now = now.Add(59 * time.Second)
	val, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, val)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_SetRestartsTTL(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := cache.NewTTL(8, time.Minute, cache.WithClock[string, int](clock))

	c.Set("a", 1)
	now = now.Add(45 * time.Second)
	c.Set("a", 2)
	now = now.Add(45 * time.Second)

	val, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, val)
}

func TestTTL_Remove(t *testing.T) {
	c := cache.NewTTL[string, int](8, time.Minute)

	c.Set("a", 1)
	c.Remove("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTL_CapacityEviction(t *testing.T) {
	c := cache.NewTTL[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestNewTTL_Panics(t *testing.T) {
	assert.Panics(t, func() { cache.NewTTL[string, int](8, 0) })
	assert.Panics(t, func() { cache.NewTTL[string, int](0, time.Minute) })
}
