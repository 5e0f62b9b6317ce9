package storable

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
)

// U32 returns the fixed 4-byte big-endian codec for uint32. Numeric order
// equals encoded byte order.
func U32() Codec[uint32] { return u32Codec{} }

// U64 returns the fixed 8-byte big-endian codec for uint64. Numeric order
// equals encoded byte order.
func U64() Codec[uint64] { return u64Codec{} }

// Byte returns the fixed 1-byte codec for a single byte.
func Byte() Codec[byte] { return byteCodec{} }

// Bytes returns the unbounded identity codec for raw byte slices.
func Bytes() Codec[[]byte] { return bytesCodec{Bnd: Unbounded()} }

// BoundedBytes returns the identity codec for byte slices of at most max bytes.
func BoundedBytes(max uint32) Codec[[]byte] { return bytesCodec{Bnd: Fixed(max)} }

// String returns the unbounded codec for strings.
func String() Codec[string] { return stringCodec{Bnd: Unbounded()} }

// BoundedString returns the codec for strings of at most max encoded bytes.
func BoundedString(max uint32) Codec[string] { return stringCodec{Bnd: Fixed(max)} }

// Empty returns the zero-byte codec for struct{} values (entries whose key
// carries all the information).
func Empty() Codec[struct{}] { return emptyCodec{} }

type u32Codec struct{}

func (u32Codec) Bound() Bound { return Fixed(4) }

func (u32Codec) Encode(v uint32) ([]byte, error) {
	b := make([]byte, 4)
	buf.PutU32BE(b, v)
	return b, nil
}

func (u32Codec) Decode(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("storable: u32 wants 4 bytes, got %d", len(b))
	}
	return buf.U32BE(b), nil
}

type u64Codec struct{}

func (u64Codec) Bound() Bound { return Fixed(8) }

func (u64Codec) Encode(v uint64) ([]byte, error) {
	b := make([]byte, 8)
	buf.PutU64BE(b, v)
	return b, nil
}

func (u64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("storable: u64 wants 8 bytes, got %d", len(b))
	}
	return buf.U64BE(b), nil
}

type byteCodec struct{}

func (byteCodec) Bound() Bound { return Fixed(1) }

func (byteCodec) Encode(v byte) ([]byte, error) { return []byte{v}, nil }

func (byteCodec) Decode(b []byte) (byte, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("storable: byte wants 1 byte, got %d", len(b))
	}
	return b[0], nil
}

type bytesCodec struct {
	Bnd Bound
}

// Bound is part of the Codec contract.
func (c bytesCodec) Bound() Bound { return c.Bnd }

func (c bytesCodec) Encode(v []byte) ([]byte, error) {
	return append([]byte(nil), v...), nil
}

func (c bytesCodec) Decode(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

type stringCodec struct {
	Bnd Bound
}

func (c stringCodec) Bound() Bound { return c.Bnd }

func (c stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (c stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

type emptyCodec struct{}

func (emptyCodec) Bound() Bound { return Fixed(0) }

func (emptyCodec) Encode(struct{}) ([]byte, error) { return nil, nil }

func (emptyCodec) Decode([]byte) (struct{}, error) { return struct{}{}, nil }
