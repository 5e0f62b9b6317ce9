package storable

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
)

// PairOf is a two-field composite value.
type PairOf[A, B any] struct {
	First  A
	Second B
}

// Pair returns a codec for two-field composite values. The first field's
// encoding is stored behind a big-endian length prefix, so the boundary
// between the fields survives variable-length encodings. The bound is fixed
// when both field bounds are.
func Pair[A, B any](first Codec[A], second Codec[B]) Codec[PairOf[A, B]] {
	return pairCodec[A, B]{first: first, second: second}
}

type pairCodec[A, B any] struct {
	first  Codec[A]
	second Codec[B]
}

func (c pairCodec[A, B]) Bound() Bound {
	fb, sb := c.first.Bound(), c.second.Bound()
	if fb.IsUnbounded() || sb.IsUnbounded() {
		return Unbounded()
	}
	return Fixed(2 + fb.Max() + sb.Max())
}

func (c pairCodec[A, B]) Encode(v PairOf[A, B]) ([]byte, error) {
	fb, err := c.first.Encode(v.First)
	if err != nil {
		return nil, err
	}
	if len(fb) > 0xffff {
		return nil, fmt.Errorf("storable: pair first field encodes to %d bytes, limit is 65535", len(fb))
	}
	sb, err := c.second.Encode(v.Second)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2+len(fb)+len(sb))
	buf.PutU16BE(out, uint16(len(fb)))
	copy(out[2:], fb)
	copy(out[2+len(fb):], sb)
	return out, nil
}

func (c pairCodec[A, B]) Decode(b []byte) (PairOf[A, B], error) {
	var zero PairOf[A, B]
	n := int(buf.U16BE(b))
	fb, ok := buf.Slice(b, 2, n)
	if !ok {
		return zero, fmt.Errorf("storable: pair of %d bytes claims first-field length %d", len(b), n)
	}
	first, err := c.first.Decode(fb)
	if err != nil {
		return zero, err
	}
	second, err := c.second.Decode(b[2+n:])
	if err != nil {
		return zero, err
	}
	return PairOf[A, B]{First: first, Second: second}, nil
}
