// Package cache holds bounded caches of decoder state and rasters, and the
// memory-pressure manager that evicts from them.
package cache

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Stats are cache counters for diagnostics.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// FIFO is a bounded cache that evicts the oldest-inserted entry first.
// Re-inserting an existing key moves it to the newest position; Get does not.
type FIFO[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    []K
	items    map[K]V
	onEvict  func(K, V)

	manager *Manager
	name    string
	size    func(V) int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewFIFO returns a cache holding at most capacity entries. onEvict may be nil.
func NewFIFO[K comparable, V any](capacity int, onEvict func(K, V)) *FIFO[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[K, V]{
		capacity: capacity,
		items:    make(map[K]V, capacity),
		onEvict:  onEvict,
	}
}

// Register reports every entry's estimated size to m under name, so memory
// pressure can evict it.
func (c *FIFO[K, V]) Register(m *Manager, name string, size func(V) int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manager = m
	c.name = name
	c.size = size
	m.register(name, c.Clear)
}

func (c *FIFO[K, V]) id(k K) string {
	return fmt.Sprintf("%s/%v", c.name, k)
}

// Get returns the value for k.
func (c *FIFO[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	v, ok := c.items[k]
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put inserts or replaces the value for k, evicting the oldest entry if full.
// A replaced value is dropped without calling onEvict.
func (c *FIFO[K, V]) Put(k K, v V) {
	type evicted struct {
		k K
		v V
	}
	var out []evicted

	c.mu.Lock()
	_, replaced := c.items[k]
	if replaced {
		c.order = slices.DeleteFunc(c.order, func(o K) bool { return o == k })
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		out = append(out, evicted{oldest, c.items[oldest]})
		delete(c.items, oldest)
		c.evictions.Add(1)
	}
	c.items[k] = v
	c.order = append(c.order, k)
	if c.manager != nil {
		for _, e := range out {
			c.manager.Untrack(c.id(e.k))
		}
		// the manager ages entries by first Track; a re-insert starts over
		if replaced {
			c.manager.Untrack(c.id(k))
		}
		c.manager.Track(c.id(k), c.size(v), func() { c.Remove(k) })
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, e := range out {
			c.onEvict(e.k, e.v)
		}
	}
}

// UpdateSize re-reports the size of k to the manager, for values that grow after insertion.
func (c *FIFO[K, V]) UpdateSize(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items[k]; ok && c.manager != nil {
		c.manager.Track(c.id(k), c.size(v), func() { c.Remove(k) })
	}
}

// Remove drops k. It is a no-op if k is absent.
func (c *FIFO[K, V]) Remove(k K) bool {
	c.mu.Lock()
	v, ok := c.items[k]
	if ok {
		delete(c.items, k)
		c.order = slices.DeleteFunc(c.order, func(o K) bool { return o == k })
		c.evictions.Add(1)
		if c.manager != nil {
			c.manager.Untrack(c.id(k))
		}
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if c.onEvict != nil {
		c.onEvict(k, v)
	}
	return true
}

// Len returns the number of entries.
func (c *FIFO[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys, oldest first.
func (c *FIFO[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Clear drops every entry.
func (c *FIFO[K, V]) Clear() {
	c.mu.Lock()
	order, items := c.order, c.items
	c.order = nil
	c.items = make(map[K]V, c.capacity)
	c.evictions.Add(uint64(len(order)))
	if c.manager != nil {
		for _, k := range order {
			c.manager.Untrack(c.id(k))
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, k := range order {
			c.onEvict(k, items[k])
		}
	}
}

// Stats returns the counters.
func (c *FIFO[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
