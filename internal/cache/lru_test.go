package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, 30*time.Second)
	c.Set("a", "1")

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", got)

	clock.t = clock.t.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set(Key("shop1", "dashboard"), "x")
	c.Set(Key("shop1", "report", "sales", "week"), "y")
	c.Set(Key("shop10", "dashboard"), "z")

	assert.Equal(t, 2, c.DeletePrefix(ShopPrefix("shop1")))
	_, ok := c.Get(Key("shop10", "dashboard"))
	assert.True(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_SetIfGeneration(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	prefix := ShopPrefix("shop1")

	gen := c.Generation(prefix)
	assert.True(t, c.SetIfGeneration(Key("shop1", "dashboard"), "fresh", prefix, gen))

	stale := c.Generation(prefix)
	c.DeletePrefix(prefix)
	assert.False(t, c.SetIfGeneration(Key("shop1", "dashboard"), "stale", prefix, stale))
	_, ok := c.Get(Key("shop1", "dashboard"))
	assert.False(t, ok)

	assert.True(t, c.SetIfGeneration(Key("shop2", "dashboard"), "other", ShopPrefix("shop2"), c.Generation(ShopPrefix("shop2"))),
		"clearing one shop leaves others cacheable")
}

func TestLRUCache_CleanExpired(t *testing.T) {
	c, clock := newTestCache(10, 30*time.Second)
	c.Set("old", "1")
	clock.t = clock.t.Add(20 * time.Second)
	c.Set("new", "2")
	clock.t = clock.t.Add(15 * time.Second)

	assert.Equal(t, 1, c.CleanExpired())
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](1, time.Second))
	m.Stop()

	m.StartCleanup(time.Millisecond)
	m.Stop()
}
