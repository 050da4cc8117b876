// Package cache provides a small time-bounded key/value cache.
//
// Entries are evicted lazily: an expired entry is dropped the next time its
// key is looked up. There is no background sweeper.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 30 * time.Minute

// Entry is a stored value and the time it was inserted.
type Entry[K comparable, V any] struct {
	Key        K
	Value      V
	InsertedAt time.Time
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// TTL is a concurrency-safe cache whose entries expire after a fixed age.
type TTL[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]Entry[K, V]
}

func New[K comparable, V any](ttl time.Duration, opts ...Option) *TTL[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]Entry[K, V]),
	}
}

// Get returns the value for key if it is present and younger than the TTL.
// An expired entry is removed and reported as a miss.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		c.mu.Lock()
		// Another writer may have refreshed the key in between.
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores value under key with a fresh timestamp, replacing any entry.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	c.entries[key] = Entry[K, V]{Key: key, Value: value, InsertedAt: c.now()}
	c.mu.Unlock()
}

func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]Entry[K, V])
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL[K, V]) TTL() time.Duration { return c.ttl }

func (c *TTL[K, V]) expired(e Entry[K, V]) bool {
	return c.now().Sub(e.InsertedAt) >= c.ttl
}
