package stream

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"nzbstream/internal/byterange"
)

// seekResult is the memoized outcome of an interpolation search: which
// segment index covers a given "segment start byte" key, and that segment's
// true byte range.
type seekResult struct {
	index int
	rng   byterange.Range
}

// seekCache maps "segment start byte" -> seekResult, consulted by looking up
// the largest key <= the target offset whose range contains it. Bounded
// capacity, LRU eviction on overflow — backed by golang-lru/v2 like
// internal/cache's article caches.
type seekCache struct {
	mu   sync.Mutex
	keys []int64 // sorted ascending, kept in sync with lru's membership
	lru  *lru.Cache[int64, seekResult]
}

func newSeekCache(capacity int) *seekCache {
	if capacity < 1 {
		capacity = 1
	}
	l, _ := lru.New[int64, seekResult](capacity)
	return &seekCache{lru: l}
}

// lookup returns the cached seekResult for the largest recorded key <= p
// whose range contains p, if any.
func (c *seekCache) lookup(p int64) (seekResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Binary search for the insertion point of p within c.keys.
	lo, hi := 0, len(c.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.keys[mid] <= p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return seekResult{}, false
	}
	key := c.keys[lo-1]
	res, ok := c.lru.Get(key)
	if !ok || !res.rng.Contains(p) {
		return seekResult{}, false
	}
	return res, true
}

// record stores the result of a fresh interpolation search, keyed by its
// segment's start byte.
func (c *seekCache) record(res seekResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := res.rng.Start
	if _, existed := c.lru.Get(key); !existed {
		evicted := c.lru.Add(key, res)
		c.insertKeyLocked(key)
		if evicted {
			c.pruneLocked()
		}
	} else {
		c.lru.Add(key, res)
	}
}

func (c *seekCache) insertKeyLocked(key int64) {
	lo, hi := 0, len(c.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	c.keys = append(c.keys, 0)
	copy(c.keys[lo+1:], c.keys[lo:])
	c.keys[lo] = key
}

// pruneLocked drops keys no longer present in the LRU (post-eviction).
func (c *seekCache) pruneLocked() {
	kept := c.keys[:0]
	for _, k := range c.keys {
		if c.lru.Contains(k) {
			kept = append(kept, k)
		}
	}
	c.keys = kept
}
