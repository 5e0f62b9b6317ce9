package structures

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

func newTestMap(t *testing.T) *BTreeMap[uint32, uint64] {
	t.Helper()
	m, err := NewBTreeMap(mem.NewVecMemory(), storable.U32(), storable.U64())
	require.NoError(t, err)
	return m
}

func TestBTreeMap_InsertGet(t *testing.T) {
	m := newTestMap(t)

	_, replaced, err := m.Insert(7, 70)
	require.NoError(t, err)
	assert.False(t, replaced)

	v, ok, err := m.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(70), v)

	_, ok, err = m.Get(8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Len())
}

func TestBTreeMap_InsertReplace(t *testing.T) {
	m := newTestMap(t)

	_, _, err := m.Insert(1, 10)
	require.NoError(t, err)
	prev, replaced, err := m.Insert(1, 11)
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, uint64(10), prev)
	assert.Equal(t, uint64(1), m.Len())

	v, ok, err := m.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(11), v)
}

func TestBTreeMap_RemoveMissing(t *testing.T) {
	m := newTestMap(t)

	_, removed, err := m.Remove(42)
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = m.Insert(1, 1)
	require.NoError(t, err)
	_, removed, err = m.Remove(2)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, uint64(1), m.Len())
}

// Enough entries to force several levels of splits and merges.
func TestBTreeMap_ManyEntries(t *testing.T) {
	m := newTestMap(t)

	const n = 2000
	rng := rand.New(rand.NewSource(1))
	keys := rng.Perm(n)
	for _, k := range keys {
		_, replaced, err := m.Insert(uint32(k), uint64(k)*2)
		require.NoError(t, err)
		require.False(t, replaced)
	}
	require.Equal(t, uint64(n), m.Len())

	for i := 0; i < n; i++ {
		v, ok, err := m.Get(uint32(i))
		require.NoError(t, err)
		require.True(t, ok, "key %d missing", i)
		require.Equal(t, uint64(i)*2, v)
	}

	// Remove every other key in random order.
	for _, k := range keys {
		if k%2 != 0 {
			continue
		}
		prev, removed, err := m.Remove(uint32(k))
		require.NoError(t, err)
		require.True(t, removed, "key %d not removed", k)
		require.Equal(t, uint64(k)*2, prev)
	}
	require.Equal(t, uint64(n/2), m.Len())

	for i := 0; i < n; i++ {
		_, ok, err := m.Get(uint32(i))
		require.NoError(t, err)
		require.Equal(t, i%2 == 1, ok, "key %d presence", i)
	}
}

func TestBTreeMap_IterOrdered(t *testing.T) {
	m := newTestMap(t)

	rng := rand.New(rand.NewSource(2))
	for _, k := range rng.Perm(500) {
		_, _, err := m.Insert(uint32(k), uint64(k))
		require.NoError(t, err)
	}

	it := m.Iter()
	var got []uint32
	for it.Next() {
		got = append(got, it.Key())
		assert.Equal(t, uint64(it.Key()), it.Value())
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 500)
	for i, k := range got {
		require.Equal(t, uint32(i), k)
	}
}

func TestBTreeMap_Range(t *testing.T) {
	m := newTestMap(t)

	for i := uint32(0); i < 100; i += 2 {
		_, _, err := m.Insert(i, uint64(i))
		require.NoError(t, err)
	}

	it, err := m.Range(10, 20)
	require.NoError(t, err)
	var got []uint32
	for it.Next() {
		got = append(got, it.Key())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{10, 12, 14, 16, 18}, got)

	// Bounds between stored keys.
	it, err = m.Range(11, 15)
	require.NoError(t, err)
	got = nil
	for it.Next() {
		got = append(got, it.Key())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{12, 14}, got)
}

func TestBTreeMap_IterUpperBound(t *testing.T) {
	m := newTestMap(t)

	for _, k := range []uint32{10, 20, 30} {
		_, _, err := m.Insert(k, uint64(k))
		require.NoError(t, err)
	}

	tests := []struct {
		bound  uint32
		want   uint32
		wantOK bool
	}{
		{5, 0, false},
		{10, 10, true},
		{15, 10, true},
		{20, 20, true},
		{25, 20, true},
		{35, 30, true},
	}
	for _, tt := range tests {
		it, err := m.IterUpperBound(tt.bound)
		require.NoError(t, err)
		require.Equal(t, tt.wantOK, it.Next(), "bound %d", tt.bound)
		require.NoError(t, it.Err())
		if tt.wantOK {
			assert.Equal(t, tt.want, it.Key(), "bound %d", tt.bound)
			assert.Equal(t, uint64(tt.want), it.Value(), "bound %d", tt.bound)
		}
	}

	// The iterator keeps walking upward past the positioned entry.
	it, err := m.IterUpperBound(25)
	require.NoError(t, err)
	var got []uint32
	for it.Next() {
		got = append(got, it.Key())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{20, 30}, got)
}

func TestBTreeMap_SparseKeys(t *testing.T) {
	m := newTestMap(t)

	_, _, err := m.Insert(0, 42)
	require.NoError(t, err)
	_, _, err = m.Insert(10, 100)
	require.NoError(t, err)

	it := m.Iter()
	require.True(t, it.Next())
	assert.Equal(t, uint32(0), it.Key())
	assert.Equal(t, uint64(42), it.Value())
	require.True(t, it.Next())
	assert.Equal(t, uint32(10), it.Key())
	assert.Equal(t, uint64(100), it.Value())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())

	rng, err := m.Range(1, 11)
	require.NoError(t, err)
	require.True(t, rng.Next())
	assert.Equal(t, uint32(10), rng.Key())
	assert.False(t, rng.Next())

	ub, err := m.IterUpperBound(5)
	require.NoError(t, err)
	require.True(t, ub.Next())
	assert.Equal(t, uint32(0), ub.Key())
	assert.Equal(t, uint64(42), ub.Value())

	prev, removed, err := m.Remove(10)
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, uint64(100), prev)
	assert.Equal(t, uint64(1), m.Len())
}

func TestBTreeMap_Reopen(t *testing.T) {
	memory := mem.NewVecMemory()
	m, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.NoError(t, err)
	for i := uint32(0); i < 300; i++ {
		_, _, err := m.Insert(i, uint64(i)+1)
		require.NoError(t, err)
	}

	reopened, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.NoError(t, err)
	require.Equal(t, uint64(300), reopened.Len())
	for i := uint32(0); i < 300; i++ {
		v, ok, err := reopened.Get(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(i)+1, v)
	}
}

// Two handles opened over the same memory see each other's mutations; state
// lives in the header, not in the handle.
func TestBTreeMap_TwoHandlesOneMemory(t *testing.T) {
	memory := mem.NewVecMemory()
	a, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.NoError(t, err)
	b, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.NoError(t, err)

	_, _, err = a.Insert(1, 10)
	require.NoError(t, err)

	v, ok, err := b.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), v)
	assert.Equal(t, uint64(1), b.Len())

	_, _, err = b.Insert(2, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a.Len())

	prev, removed, err := a.Remove(2)
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, uint64(20), prev)

	it := b.Iter()
	require.True(t, it.Next())
	assert.Equal(t, uint32(1), it.Key())
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestBTreeMap_ReopenWrongBounds(t *testing.T) {
	memory := mem.NewVecMemory()
	_, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.NoError(t, err)

	_, err = NewBTreeMap(memory, storable.U64(), storable.U64())
	require.ErrorIs(t, err, ErrIncompatibleLayout)
}

func TestBTreeMap_BadMagic(t *testing.T) {
	memory := mem.NewVecMemory()
	memory.Grow(1)
	memory.Write(0, []byte("garbage"))

	_, err := NewBTreeMap(memory, storable.U32(), storable.U64())
	require.ErrorIs(t, err, ErrIncompatibleLayout)
}

func TestBTreeMap_UnboundedCodecRejected(t *testing.T) {
	_, err := NewBTreeMap(mem.NewVecMemory(), storable.String(), storable.U64())
	require.ErrorIs(t, err, ErrUnboundedValue)
}

func TestBTreeMap_ValueTooLarge(t *testing.T) {
	m, err := NewBTreeMap(mem.NewVecMemory(), storable.BoundedString(4), storable.U64())
	require.NoError(t, err)

	_, _, err = m.Insert("toolong", 1)
	require.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, uint64(0), m.Len())
}

func TestBTreeMap_NodeReuseAfterRemove(t *testing.T) {
	m := newTestMap(t)

	for i := uint32(0); i < 500; i++ {
		_, _, err := m.Insert(i, 1)
		require.NoError(t, err)
	}
	highWater := m.next
	for i := uint32(0); i < 500; i++ {
		_, _, err := m.Remove(i)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(0), m.Len())

	for i := uint32(0); i < 500; i++ {
		_, _, err := m.Insert(i, 2)
		require.NoError(t, err)
	}
	// Freed nodes were recycled, not re-allocated past the old high-water mark.
	assert.Equal(t, highWater, m.next)
}

func TestBTreeMap_Clear(t *testing.T) {
	m := newTestMap(t)

	for i := uint32(0); i < 50; i++ {
		_, _, err := m.Insert(i, 1)
		require.NoError(t, err)
	}
	require.NoError(t, m.Clear())
	assert.Equal(t, uint64(0), m.Len())

	_, ok, err := m.Get(10)
	require.NoError(t, err)
	assert.False(t, ok)

	it := m.Iter()
	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}
