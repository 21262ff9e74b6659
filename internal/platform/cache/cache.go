// Package cache provides a bounded in-process TTL cache with LRU eviction.
// Instances are constructed per process and passed by reference; there is no
// package-level singleton state.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a bounded key/value store. Entries expire after the configured TTL
// and the least recently used entry is evicted once the size bound is reached.
type Cache[V any] struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type entry[V any] struct {
	key     string
	value   V
	expires time.Time
}

// New constructs a cache with the given TTL, size bound and clock.
func New[V any](ttl time.Duration, maxSize int, now func() time.Time) *Cache[V] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 128
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value when present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[V])
	if c.now().After(ent.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return ent.value, true
}

// Put stores the value, refreshing its TTL and recency.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.expires = expires
		c.order.MoveToFront(elem)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[V]{key: key, value: value, expires: expires})
	for len(c.entries) > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry[V]).key)
	}
}

// Invalidate removes the entry for key if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Len reports the number of entries currently held, including expired ones not
// yet touched.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
