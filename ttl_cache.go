package promptcache

import (
	"sync"
	"time"
)

// TTLCache is a process-local bounded cache mapping keys to byte payloads
// with per-entry absolute expiry. It backs StrategySimple when no
// distributed store is configured.
//
// All operations serialize through a single mutex. Eviction scans are
// O(entries), which is acceptable for the expected size (hundreds to low
// thousands of entries).
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]ttlEntry
	maxSize    int
	defaultTTL time.Duration
}

type ttlEntry struct {
	data      []byte
	expiresAt time.Time
}

// DefaultMaxLocalEntries bounds the local cache when no size is configured.
const DefaultMaxLocalEntries = 1000

// NewTTLCache creates a bounded TTL cache. maxSize <= 0 falls back to
// DefaultMaxLocalEntries; defaultTTL <= 0 falls back to one minute.
func NewTTLCache(maxSize int, defaultTTL time.Duration) *TTLCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxLocalEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &TTLCache{
		entries:    make(map[string]ttlEntry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}
}

// Get returns the value stored under key, or false if the key is unknown or
// expired. Expired entries are not removed on read; they stay until
// CleanupExpired, eviction, or an overwriting Set.
func (c *TTLCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores value under key with the cache's default TTL.
func (c *TTLCache) Set(key string, value []byte) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL. If the cache is
// full, the entry with the earliest expiry is evicted first. Overwriting an
// existing key never triggers eviction.
func (c *TTLCache) SetWithTTL(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = ttlEntry{data: value, expiresAt: time.Now().Add(ttl)}
}

// evictOldest removes the entry with the earliest expiry. This is
// LRU-by-freshness, not true LRU; the policy is preserved from the original
// library for behavior compatibility. Caller holds c.mu.
func (c *TTLCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expiresAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.expiresAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Delete removes a single key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ttlEntry)
}

// CleanupExpired removes every expired entry and returns how many were
// removed. Not called automatically; intended for an external scheduler.
func (c *TTLCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Size returns the current entry count, including not-yet-cleaned expired
// entries.
func (c *TTLCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IsEmpty reports whether the cache holds no entries.
func (c *TTLCache) IsEmpty() bool {
	return c.Size() == 0
}
