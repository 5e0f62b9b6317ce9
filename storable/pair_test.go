package storable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPair_RoundTrip(t *testing.T) {
	c := Pair(U32(), BoundedString(8))
	assert.Equal(t, Fixed(2+4+8), c.Bound())

	v := PairOf[uint32, string]{First: 42, Second: "meaning"}
	b, err := c.Encode(v)
	require.NoError(t, err)

	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestPair_VariableFirstField(t *testing.T) {
	c := Pair(BoundedString(16), BoundedString(16))

	// The length prefix must keep "ab"+"c" distinct from "a"+"bc".
	b1, err := c.Encode(PairOf[string, string]{First: "ab", Second: "c"})
	require.NoError(t, err)
	b2, err := c.Encode(PairOf[string, string]{First: "a", Second: "bc"})
	require.NoError(t, err)
	assert.NotEqual(t, b1, b2)

	got, err := c.Decode(b1)
	require.NoError(t, err)
	assert.Equal(t, "ab", got.First)
	assert.Equal(t, "c", got.Second)
}

func TestPair_UnboundedWhenEitherIs(t *testing.T) {
	assert.True(t, Pair(U32(), String()).Bound().IsUnbounded())
	assert.True(t, Pair(String(), U32()).Bound().IsUnbounded())
	assert.False(t, Pair(U32(), U64()).Bound().IsUnbounded())
}

func TestPair_DecodeTruncated(t *testing.T) {
	c := Pair(BoundedString(8), U32())
	_, err := c.Decode([]byte{0, 5, 'a'})
	require.Error(t, err)
}
