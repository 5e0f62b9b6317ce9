package structures

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

func TestLog_AppendGet(t *testing.T) {
	l, err := NewLog(mem.NewVecMemory(), mem.NewVecMemory(), storable.String())
	require.NoError(t, err)

	n, err := l.Append("first")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = l.Append("second")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	require.Equal(t, uint64(2), l.Len())

	v, ok, err := l.Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok, err = l.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok, err = l.Get(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLog_VariableLengths(t *testing.T) {
	l, err := NewLog(mem.NewVecMemory(), mem.NewVecMemory(), storable.String())
	require.NoError(t, err)

	entries := []string{"", "x", strings.Repeat("y", 100000), "tail"}
	for _, e := range entries {
		_, err := l.Append(e)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(100005), l.SizeBytes())

	for i, want := range entries {
		got, ok, err := l.Get(uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestLog_Reopen(t *testing.T) {
	index, data := mem.NewVecMemory(), mem.NewVecMemory()
	l, err := NewLog(index, data, storable.U64())
	require.NoError(t, err)
	for i := uint64(0); i < 20; i++ {
		_, err := l.Append(i * 3)
		require.NoError(t, err)
	}

	reopened, err := NewLog(index, data, storable.U64())
	require.NoError(t, err)
	require.Equal(t, uint64(20), reopened.Len())
	v, ok, err := reopened.Get(19)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(57), v)
}

func TestLog_BoundEnforced(t *testing.T) {
	l, err := NewLog(mem.NewVecMemory(), mem.NewVecMemory(), storable.BoundedString(4))
	require.NoError(t, err)

	_, err = l.Append("12345")
	require.ErrorIs(t, err, ErrValueTooLarge)
	assert.Equal(t, uint64(0), l.Len())
}

func TestLog_Clear(t *testing.T) {
	l, err := NewLog(mem.NewVecMemory(), mem.NewVecMemory(), storable.String())
	require.NoError(t, err)
	_, err = l.Append("entry")
	require.NoError(t, err)

	require.NoError(t, l.Clear())
	assert.Equal(t, uint64(0), l.Len())
	assert.Equal(t, uint64(0), l.SizeBytes())

	n, err := l.Append("fresh")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	v, ok, err := l.Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestLog_BadMagic(t *testing.T) {
	index := mem.NewVecMemory()
	index.Grow(1)
	index.Write(0, []byte("NOP"))

	_, err := NewLog(index, mem.NewVecMemory(), storable.String())
	require.ErrorIs(t, err, ErrIncompatibleLayout)
}
