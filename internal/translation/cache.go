package translation

import (
	"sync"
	"sync/atomic"
)

type cacheKey struct {
	text, source, target string
}

// Cache is a process-wide translation cache keyed by (text, source, target).
// Entries are never replaced; only Clear removes them.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Result
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Result)}
}

// Get returns the cached result for (text, source, target).
func (c *Cache) Get(text, source, target string) (Result, bool) {
	c.mu.RLock()
	r, ok := c.entries[cacheKey{text, source, target}]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return r, ok
}

// Put stores r unless an entry already exists, and returns the stored entry.
func (c *Cache) Put(r Result) Result {
	k := cacheKey{r.OriginalText, r.SourceLanguage, r.TargetLanguage}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok {
		return existing
	}
	c.entries[k] = r
	return r
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[cacheKey]Result)
	return n
}

// Counters returns lookup hit and miss totals.
func (c *Cache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
