package cache

// Map is the map surface CachedMap decorates. Both *structures.BTreeMap and
// the other persistent maps satisfy it once their key type is comparable.
type Map[K comparable, V any] interface {
	Get(key K) (V, bool, error)
	Insert(key K, value V) (V, bool, error)
	Remove(key K) (V, bool, error)
	Clear() error
}

// CachedMap puts an LRU in front of a persistent map. Reads populate the
// cache; writes go through to the map and invalidate the cached entry rather
// than refresh it, so the cache never holds a value the map did not accept.
type CachedMap[K comparable, V any] struct {
	inner Map[K, V]
	lru   *Lru[K, V]
}

// NewCachedMap wraps inner with an LRU of the given capacity.
func NewCachedMap[K comparable, V any](inner Map[K, V], capacity int) *CachedMap[K, V] {
	return &CachedMap[K, V]{inner: inner, lru: NewLru[K, V](capacity)}
}

// Get returns the value under key, from the cache when possible.
func (c *CachedMap[K, V]) Get(key K) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}
	v, ok, err := c.inner.Get(key)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	c.lru.Put(key, v)
	return v, true, nil
}

// Insert stores value under key, then invalidates the cached entry.
func (c *CachedMap[K, V]) Insert(key K, value V) (V, bool, error) {
	prev, replaced, err := c.inner.Insert(key, value)
	c.lru.Remove(key)
	return prev, replaced, err
}

// Remove deletes the entry under key, then invalidates the cached entry.
func (c *CachedMap[K, V]) Remove(key K) (V, bool, error) {
	prev, removed, err := c.inner.Remove(key)
	c.lru.Remove(key)
	return prev, removed, err
}

// Clear empties the cache first, then the map, so a failed map clear cannot
// leave stale cached entries behind.
func (c *CachedMap[K, V]) Clear() error {
	c.lru.Clear()
	return c.inner.Clear()
}
