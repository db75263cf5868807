// Package embedcache holds recently computed query embeddings in a bounded,
// time-expiring LRU cache.
package embedcache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults used when New is given non-positive values.
const (
	DefaultCapacity = 1024
	DefaultTTL      = 10 * time.Minute
)

// ComputeFunc produces the embedding for a normalized query.
type ComputeFunc func(ctx context.Context, query string) ([]float32, error)

type entry struct {
	key       string
	vec       []float32
	writtenAt time.Time
}

// Cache maps normalized query strings to embedding vectors.
// Entries are evicted least-recently-used first once capacity is reached,
// and expire ttl after they were written.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	group    singleflight.Group
	hits     uint64
	misses   uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache holding at most capacity entries for ttl each.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeKey lowercases, trims and collapses internal whitespace.
func NormalizeKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get returns the cached vector for query if present and not expired.
// An expired entry is evicted.
func (c *Cache) Get(query string) ([]float32, bool) {
	key := NormalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.writtenAt) >= c.ttl {
		c.removeElement(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.vec, true
}

// Put stores vec under query, evicting the least recently used entry when full.
func (c *Cache) Put(query string, vec []float32) {
	key := NormalizeKey(query)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.vec = vec
		e.writtenAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry{key: key, vec: vec, writtenAt: c.now()})
}

// GetOrCompute returns the cached vector or computes and stores it.
// Computation runs outside the cache lock; concurrent misses for the same
// key share one call to fn. hit reports whether the vector came from a stored
// entry; a caller that joined an in-flight computation did not hit.
func (c *Cache) GetOrCompute(ctx context.Context, query string, fn ComputeFunc) (vec []float32, hit bool, err error) {
	if vec, ok := c.Get(query); ok {
		return vec, true, nil
	}
	key := NormalizeKey(query)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		vec, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Put(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]float32), false, nil
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops all expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*entry).writtenAt) >= c.ttl {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.order.Len(), Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}

// caller holds c.mu
func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
