package storable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestU32_OrderPreserving(t *testing.T) {
	c := U32()
	assert.Equal(t, Fixed(4), c.Bound())

	// Numeric order must equal byte order, map iteration depends on it.
	values := []uint32{0, 1, 255, 256, 1 << 16, 1<<31 - 1, 1 << 31, ^uint32(0)}
	var prev []byte
	for _, v := range values {
		b, err := c.Encode(v)
		require.NoError(t, err)
		require.Len(t, b, 4)
		if prev != nil {
			assert.Negative(t, bytes.Compare(prev, b), "encoding of %d not above predecessor", v)
		}
		prev = b

		got, err := c.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := c.Decode([]byte{1, 2})
	require.Error(t, err)
}

func TestU64_OrderPreserving(t *testing.T) {
	c := U64()
	assert.Equal(t, Fixed(8), c.Bound())

	values := []uint64{0, 1, 1 << 32, ^uint64(0)}
	var prev []byte
	for _, v := range values {
		b, err := c.Encode(v)
		require.NoError(t, err)
		require.Len(t, b, 8)
		if prev != nil {
			assert.Negative(t, bytes.Compare(prev, b))
		}
		prev = b

		got, err := c.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestByte_RoundTrip(t *testing.T) {
	c := Byte()
	b, err := c.Encode(0x7f)
	require.NoError(t, err)
	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), got)
}

func TestBytes_CopiesInput(t *testing.T) {
	c := Bytes()
	assert.True(t, c.Bound().IsUnbounded())

	src := []byte("mutable")
	enc, err := c.Encode(src)
	require.NoError(t, err)
	src[0] = 'X'
	assert.Equal(t, []byte("mutable"), enc)

	dec, err := c.Decode(enc)
	require.NoError(t, err)
	enc[0] = 'Y'
	assert.Equal(t, []byte("mutable"), dec)
}

func TestBoundedVariants(t *testing.T) {
	assert.Equal(t, uint32(16), BoundedBytes(16).Bound().Max())
	assert.Equal(t, uint32(32), BoundedString(32).Bound().Max())
	assert.False(t, BoundedString(32).Bound().IsUnbounded())
	assert.True(t, String().Bound().IsUnbounded())
}

func TestString_RoundTrip(t *testing.T) {
	c := String()
	for _, s := range []string{"", "ascii", "ütf-8 ößç", "\x00embedded\x00nul"} {
		b, err := c.Encode(s)
		require.NoError(t, err)
		got, err := c.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEmpty_ZeroBytes(t *testing.T) {
	c := Empty()
	assert.Equal(t, Fixed(0), c.Bound())

	b, err := c.Encode(struct{}{})
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = c.Decode(nil)
	require.NoError(t, err)
}
