package secrets

import (
	"sync"
	"time"
)

// DefaultCacheSize bounds the number of cached secrets.
const DefaultCacheSize = 256

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache holds resolved secrets for a TTL. A zero TTL disables it. When
// full, the entry closest to expiry is evicted.
type Cache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache creates a cache. maxSize <= 0 means DefaultCacheSize.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns an unexpired value.
func (c *Cache) Get(name string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Set stores value for the TTL.
func (c *Cache) Set(name, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists && len(c.entries) >= c.maxSize {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expiresAt.Before(oldestAt) {
				oldest, oldestAt = k, e.expiresAt
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[name] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
