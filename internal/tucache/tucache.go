// Package tucache implements the bounded translation-unit cache of spec
// §4.D: a FIFO of (path, args) -> TranslationUnit, where Get removes and
// returns the entry, and Put appends, evicting the oldest entry once the
// bound is exceeded.
package tucache

import (
	"sync"

	"github.com/rtagsd/rtagsd/internal/parseapi"
)

// DefaultBound is the default cache bound named in spec §4.D.
const DefaultBound = 5

// Key identifies one cached translation unit by the build that produced it.
type Key struct {
	Path string
	Args string // joined argv, order-sensitive, per the teacher's cache-key hashing
}

type entry struct {
	key Key
	tu  parseapi.TranslationUnit
}

// Cache is a bounded FIFO translation-unit cache, safe for concurrent use;
// Get/Put are serialized on a single cache mutex (spec §5 "Cache mutex").
type Cache struct {
	mu      sync.Mutex
	bound   int
	entries []entry
}

// New creates a Cache bounded at n entries (DefaultBound if n <= 0).
func New(n int) *Cache {
	if n <= 0 {
		n = DefaultBound
	}
	return &Cache{bound: n}
}

// Get removes and returns the cached TU for key, if present.
func (c *Cache) Get(key Key) (parseapi.TranslationUnit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return e.tu, true
		}
	}
	return nil, false
}

// Put appends tu under key, evicting and disposing the oldest entry if the
// cache is over bound. Disposal of an evicted entry's parser handle happens
// exactly once, here.
func (c *Cache) Put(key Key, tu parseapi.TranslationUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{key: key, tu: tu})
	for len(c.entries) > c.bound {
		oldest := c.entries[0]
		c.entries = c.entries[1:]
		oldest.tu.Dispose()
	}
}

// Invalidate removes and disposes the cached TU for key, if present, for
// explicit invalidation by the finish callback (spec §3 Lifecycle).
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			e.tu.Dispose()
			return
		}
	}
}

// Len returns the number of cached entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
