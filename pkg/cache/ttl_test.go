package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	c := New[string, int](30*time.Minute, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(29 * time.Minute)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("expected hit with 1, got %d %v", v, ok)
	}
}

func TestExpiredEntryIsMissAndEvicted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	c := New[string, int](30*time.Minute, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(30 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy eviction on lookup, len=%d", c.Len())
	}
}

func TestSetOverwritesWithFreshTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	c := New[string, int](time.Minute, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(50 * time.Second)
	c.Set("a", 2)
	clock.Advance(50 * time.Second)
	v, ok := c.Get("a")
	if !ok || v != 2 {
		t.Fatalf("expected refreshed value 2, got %d %v", v, ok)
	}
}

func TestClearAndDelete(t *testing.T) {
	c := New[int, string](0)
	if c.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl, got %s", c.TTL())
	}
	c.Set(1, "x")
	c.Set(2, "y")
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected deleted key to miss")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after clear")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(j%4, i)
				_, _ = c.Get(j % 4)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Fatalf("expected 4 keys, got %d", c.Len())
	}
}
