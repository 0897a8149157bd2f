package prediction

import (
	"encoding/json"
	"sync"
	"time"
)

const defaultMemoryTTL = 5 * time.Minute

// nowFunc is swapped in tests to pin expiry arithmetic.
var nowFunc = time.Now

type memoryEntry struct {
	data       json.RawMessage
	confidence float64
	expiresAt  time.Time
}

// MemoryCache is the in-process first cache layer. It is constructed and
// injected at service start, never shared as a package global, and all
// access is serialized by the mutex so concurrent request handlers are
// safe.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

// NewMemoryCache builds a memory cache with the given entry TTL. A
// non-positive TTL falls back to the 5 minute default.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached payload and its confidence. Expired entries are
// evicted on read.
func (c *MemoryCache) Get(key string) (json.RawMessage, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, 0, false
	}
	if nowFunc().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, 0, false
	}
	return entry.data, entry.confidence, true
}

// Put stores a payload under key for the cache TTL.
func (c *MemoryCache) Put(key string, data json.RawMessage, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		data:       data,
		confidence: confidence,
		expiresAt:  nowFunc().Add(c.ttl),
	}
}

// Delete removes one entry.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep evicts every expired entry and reports how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := nowFunc()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the current entry count, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
