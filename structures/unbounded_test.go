package structures

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

func TestUnbounded_MultiChunkRoundTrip(t *testing.T) {
	for _, chunkSize := range []uint32{1, 7, 64, 4096} {
		u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), chunkSize)
		require.NoError(t, err)

		value := strings.Repeat("chunky", 1000)
		_, replaced, err := u.Insert(1, value)
		require.NoError(t, err)
		assert.False(t, replaced)

		got, ok, err := u.Get(1)
		require.NoError(t, err)
		require.True(t, ok, "chunk size %d", chunkSize)
		require.Equal(t, value, got, "chunk size %d", chunkSize)
	}
}

func TestUnbounded_ReplaceShrinks(t *testing.T) {
	u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), 8)
	require.NoError(t, err)

	long := strings.Repeat("a", 100)
	_, _, err = u.Insert(1, long)
	require.NoError(t, err)

	prev, replaced, err := u.Insert(1, "tiny")
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, long, prev)

	// No stale chunks from the longer value may survive.
	got, ok, err := u.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tiny", got)
}

func TestUnbounded_EmptyValue(t *testing.T) {
	u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), 8)
	require.NoError(t, err)

	_, _, err = u.Insert(3, "")
	require.NoError(t, err)

	got, ok, err := u.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "", got)

	n, err := u.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestUnbounded_Remove(t *testing.T) {
	u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), 4)
	require.NoError(t, err)

	_, _, err = u.Insert(1, "abcdefgh")
	require.NoError(t, err)
	_, _, err = u.Insert(2, "other")
	require.NoError(t, err)

	prev, removed, err := u.Remove(1)
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, "abcdefgh", prev)

	_, ok, err := u.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := u.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "other", got)

	_, removed, err = u.Remove(1)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUnbounded_Iter(t *testing.T) {
	u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), 4)
	require.NoError(t, err)

	want := map[uint32]string{
		1: strings.Repeat("x", 17),
		2: "short",
		3: "",
		4: strings.Repeat("z", 9),
	}
	for k, v := range want {
		_, _, err := u.Insert(k, v)
		require.NoError(t, err)
	}

	it := u.Iter()
	var keys []uint32
	got := make(map[uint32]string)
	for it.Next() {
		keys = append(keys, it.Key())
		got[it.Key()] = it.Value()
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{1, 2, 3, 4}, keys)
	assert.Equal(t, want, got)
}

func TestUnbounded_LenCountsKeysNotChunks(t *testing.T) {
	u, err := NewUnbounded(mem.NewVecMemory(), storable.U32(), storable.String(), 2)
	require.NoError(t, err)

	_, _, err = u.Insert(1, "many chunks here")
	require.NoError(t, err)
	_, _, err = u.Insert(2, "more of the same")
	require.NoError(t, err)

	n, err := u.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestUnbounded_UnboundedKeyRejected(t *testing.T) {
	_, err := NewUnbounded(mem.NewVecMemory(), storable.String(), storable.String(), 8)
	require.ErrorIs(t, err, ErrUnboundedValue)
}
