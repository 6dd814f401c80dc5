// Package cache provides a short-TTL memoization layer in front of the
// aggregator, keyed by query parameters. It absorbs request bursts; it is
// not a correctness mechanism, and callers must tolerate values up to one
// TTL stale.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a TTL-bounded in-process response cache. Expired entries are
// evicted lazily on access and swept periodically via Cleanup.
type Cache struct {
	mu      sync.RWMutex
	entries map[uint64]entry
}

// New creates an empty response cache.
func New() *Cache {
	return &Cache{
		entries: make(map[uint64]entry),
	}
}

// Key derives a cache key from normalized query parameters.
func Key(parts ...string) uint64 {
	return xxhash.Sum64String(strings.Join(parts, "|"))
}

// Get returns the cached value for key. A value past its expiry is never
// returned; it is deleted on the spot instead.
func (c *Cache) Get(key uint64) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a Set may have replaced it.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key uint64, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key uint64) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Cleanup sweeps expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
