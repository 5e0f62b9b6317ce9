// Package cache provides a fixed-capacity LRU and a caching decorator for
// the persistent maps in package structures.
package cache

import (
	"container/list"
	"sync"
)

// entry pairs a key with its cached value inside the recency list.
type entry[K comparable, V any] struct {
	key   K
	value V
}

// Lru is a mutex-guarded LRU cache holding at most capacity entries.
// Strictly count-based: no TTL, no weighing.
type Lru[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recently used
}

// NewLru creates an LRU cache with the given capacity.
// A capacity of 0 disables caching: every Get misses and Put is a no-op.
func NewLru[K comparable, V any](capacity int) *Lru[K, V] {
	return &Lru[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached value for key, marking it most recently used.
func (c *Lru[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.capacity == 0 {
		return zero, false
	}
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	c.order.MoveToFront(elem)
	v := elem.Value.(*entry[K, V]).value
	c.mu.Unlock()
	return v, true
}

// Put stores value under key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *Lru[K, V]) Put(key K, value V) {
	if c.capacity == 0 {
		return
	}
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		c.mu.Unlock()
		return
	}
	if c.order.Len() >= c.capacity {
		back := c.order.Back()
		if back != nil {
			evicted := c.order.Remove(back).(*entry[K, V])
			delete(c.items, evicted.key)
		}
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	c.mu.Unlock()
}

// Remove drops key from the cache, reporting whether it was present.
func (c *Lru[K, V]) Remove(key K) bool {
	c.mu.Lock()
	elem, ok := c.items[key]
	if ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
	c.mu.Unlock()
	return ok
}

// Len returns the current number of cached entries.
func (c *Lru[K, V]) Len() int {
	c.mu.Lock()
	n := c.order.Len()
	c.mu.Unlock()
	return n
}

// Clear drops every entry.
func (c *Lru[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
	c.mu.Unlock()
}
