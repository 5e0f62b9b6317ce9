package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
	"github.com/joshuapare/stablekit/structures"
)

// countingMap records how many calls reach the underlying map.
type countingMap struct {
	inner Map[uint32, uint64]
	gets  int
}

func (m *countingMap) Get(k uint32) (uint64, bool, error) {
	m.gets++
	return m.inner.Get(k)
}
func (m *countingMap) Insert(k uint32, v uint64) (uint64, bool, error) { return m.inner.Insert(k, v) }
func (m *countingMap) Remove(k uint32) (uint64, bool, error)           { return m.inner.Remove(k) }
func (m *countingMap) Clear() error                                    { return m.inner.Clear() }

func newBackedCache(t *testing.T, capacity int) (*CachedMap[uint32, uint64], *countingMap) {
	t.Helper()
	tree, err := structures.NewBTreeMap(mem.NewVecMemory(), storable.U32(), storable.U64())
	require.NoError(t, err)
	counting := &countingMap{inner: tree}
	return NewCachedMap[uint32, uint64](counting, capacity), counting
}

func TestCachedMap_ReadThrough(t *testing.T) {
	c, counting := newBackedCache(t, 16)

	_, _, err := c.Insert(1, 100)
	require.NoError(t, err)

	v, ok, err := c.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)
	assert.Equal(t, 1, counting.gets)

	// Second read is served from the cache.
	v, ok, err = c.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), v)
	assert.Equal(t, 1, counting.gets)
}

func TestCachedMap_InsertInvalidates(t *testing.T) {
	c, counting := newBackedCache(t, 16)

	_, _, err := c.Insert(1, 100)
	require.NoError(t, err)
	_, _, err = c.Get(1)
	require.NoError(t, err)

	prev, replaced, err := c.Insert(1, 200)
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, uint64(100), prev)

	// The stale cached value is gone; the next read goes to the map.
	v, ok, err := c.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(200), v)
	assert.Equal(t, 2, counting.gets)
}

func TestCachedMap_RemoveInvalidates(t *testing.T) {
	c, _ := newBackedCache(t, 16)

	_, _, err := c.Insert(1, 100)
	require.NoError(t, err)
	_, _, err = c.Get(1)
	require.NoError(t, err)

	prev, removed, err := c.Remove(1)
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, uint64(100), prev)

	_, ok, err := c.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedMap_Clear(t *testing.T) {
	c, counting := newBackedCache(t, 16)

	_, _, err := c.Insert(1, 1)
	require.NoError(t, err)
	_, _, err = c.Get(1)
	require.NoError(t, err)

	require.NoError(t, c.Clear())
	_, ok, err := c.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, counting.gets)
}

// orderedMap observes the cache from inside a write to pin down the
// write-through order: the inner map is updated first, the cached entry is
// dropped after.
type orderedMap struct {
	inner Map[uint32, uint64]
	c     *CachedMap[uint32, uint64]
	seen  []uint64
}

func (m *orderedMap) Get(k uint32) (uint64, bool, error) { return m.inner.Get(k) }
func (m *orderedMap) Insert(k uint32, v uint64) (uint64, bool, error) {
	if cached, ok := m.c.lru.Get(k); ok {
		m.seen = append(m.seen, cached)
	}
	return m.inner.Insert(k, v)
}
func (m *orderedMap) Remove(k uint32) (uint64, bool, error) {
	if cached, ok := m.c.lru.Get(k); ok {
		m.seen = append(m.seen, cached)
	}
	return m.inner.Remove(k)
}
func (m *orderedMap) Clear() error { return m.inner.Clear() }

func TestCachedMap_WriteThroughBeforeInvalidate(t *testing.T) {
	tree, err := structures.NewBTreeMap(mem.NewVecMemory(), storable.U32(), storable.U64())
	require.NoError(t, err)
	ordered := &orderedMap{inner: tree}
	c := NewCachedMap[uint32, uint64](ordered, 16)
	ordered.c = c

	_, _, err = c.Insert(1, 100)
	require.NoError(t, err)
	_, _, err = c.Get(1)
	require.NoError(t, err)

	// The write reaches the map while the old entry is still cached.
	_, _, err = c.Insert(1, 200)
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, ordered.seen)
	_, ok := c.lru.Get(1)
	assert.False(t, ok)

	_, _, err = c.Get(1)
	require.NoError(t, err)
	_, _, err = c.Remove(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 200}, ordered.seen)
	_, ok = c.lru.Get(1)
	assert.False(t, ok)
}

func TestCachedMap_MissNotCached(t *testing.T) {
	c, counting := newBackedCache(t, 16)

	_, ok, err := c.Get(42)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Get(42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, counting.gets)
}
