// Package storable defines the value-serialization contract the collection
// structures are generic over: a Codec turns values into bytes and back,
// and declares a Bound on the encoded size so fixed-slot structures can
// reserve space and reject oversized values.
package storable

// Bound declares the maximum encoded byte length of a value type, or that
// the type is unbounded and must be chunked by the structure storing it.
type Bound struct {
	maxSize   uint32
	unbounded bool
}

// Fixed returns a bound of at most max encoded bytes.
func Fixed(max uint32) Bound {
	return Bound{maxSize: max}
}

// Unbounded returns the bound of types with no declared maximum size.
func Unbounded() Bound {
	return Bound{unbounded: true}
}

// IsUnbounded reports whether the bound declares no maximum size.
func (b Bound) IsUnbounded() bool { return b.unbounded }

// Max returns the maximum encoded size in bytes. Zero when unbounded.
func (b Bound) Max() uint32 {
	if b.unbounded {
		return 0
	}
	return b.maxSize
}

// Codec encodes and decodes values of one type.
//
// Encodings must round-trip: Decode(Encode(v)) == v. When a codec is used
// for map keys, the byte-wise lexicographic order of encodings is the map's
// iteration order, so key codecs should encode in an order-preserving way
// (the integer codecs in this package are big-endian for that reason).
type Codec[T any] interface {
	// Bound declares the maximum encoded size.
	Bound() Bound
	// Encode returns the byte representation of v.
	Encode(v T) ([]byte, error)
	// Decode reconstructs a value from its byte representation.
	Decode(b []byte) (T, error)
}
