// Package cache implements the two bounded TTL caches consulted on every
// article open: the healthy-article cache and the missing-article cache.
// Built on github.com/hashicorp/golang-lru/v2, backing both this package's
// caches and internal/stream's seek-result cache.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"nzbstream/internal/nntp"
)

// entry pairs a cached key with the time it was inserted, for TTL expiry on
// read.
type entry struct {
	insertedAt time.Time
}

// TTLCache is a fixed-capacity, entry-level-TTL cache of article IDs. Reads
// are served against a stable snapshot (the underlying LRU's own locking);
// Reset atomically swaps in a fresh, empty cache, so invalidation replaces
// the cache rather than mutating it in place.
type TTLCache struct {
	mu       sync.RWMutex
	lru      *lru.Cache[string, entry]
	size     int
	ttl      time.Duration
}

// New creates a TTLCache bounded to size entries, each expiring after ttl.
func New(size int, ttl time.Duration) *TTLCache {
	if size <= 0 {
		size = 1
	}
	l, _ := lru.New[string, entry](size)
	return &TTLCache{lru: l, size: size, ttl: ttl}
}

// Contains reports whether id is present and not yet expired.
func (c *TTLCache) Contains(id string) bool {
	c.mu.RLock()
	l := c.lru
	ttl := c.ttl
	c.mu.RUnlock()

	e, ok := l.Peek(id)
	if !ok {
		return false
	}
	if ttl > 0 && time.Since(e.insertedAt) > ttl {
		l.Remove(id)
		return false
	}
	return true
}

// Add inserts id, refreshing its TTL if already present and bumping its
// position in the LRU eviction order.
func (c *TTLCache) Add(id string) {
	c.mu.RLock()
	l := c.lru
	c.mu.RUnlock()
	l.Add(id, entry{insertedAt: time.Now()})
}

// Reset atomically replaces the underlying cache with a fresh, empty one of
// the same size/TTL configuration and returns itself (satisfying
// nntp.Resettable) so callers can clear state on a server-health change or a
// usenet-config change without invalidating outstanding readers mid-read.
func (c *TTLCache) Reset() nntp.ArticleCache {
	l, _ := lru.New[string, entry](c.size)
	c.mu.Lock()
	c.lru = l
	c.mu.Unlock()
	return c
}

// Len reports the current entry count, including not-yet-expired-but-stale
// entries (useful for metrics, not correctness).
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
