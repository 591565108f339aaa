package trends

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// DefaultCacheTTL is how long a successful lookup is reused.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores successful lookups keyed case-insensitively by brand.
type Cache interface {
	Get(brand string) (Result, bool)
	Set(brand string, r Result)
	Clear()
	Size() int
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// MemoryCache is a process-local Cache with TTL expiry. Expired entries are
// dropped lazily on Get. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	fold    cases.Caser
	now     func() time.Time
}

// NewMemoryCache returns an empty cache. A non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		fold:    cases.Fold(),
		now:     time.Now,
	}
}

// key must be called with mu held; Caser is stateful.
func (c *MemoryCache) key(brand string) string {
	return c.fold.String(strings.TrimSpace(brand))
}

// Get returns the cached result for brand with Cached set.
func (c *MemoryCache) Get(brand string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.key(brand)
	e, ok := c.entries[k]
	if !ok {
		return Result{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, k)
		return Result{}, false
	}
	r := e.result
	r.Cached = true
	return r, true
}

// Set stores r for brand. Results carrying an error are ignored.
func (c *MemoryCache) Set(brand string, r Result) {
	if !r.OK() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r.Cached = false
	c.entries[c.key(brand)] = cacheEntry{result: r, expiresAt: c.now().Add(c.ttl)}
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Size returns the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
