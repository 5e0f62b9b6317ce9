package structures

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Header layout:
//
//	off 0  "VEC" magic
//	off 3  layout version
//	off 4  slot payload size, u32
//	off 8  element count, u64
//	off 16 slots, (4 + payload size) bytes each
const (
	vecMagic      = "VEC"
	vecVersion    = 1
	vecHeaderSize = 16
)

// Vec is a growable array stored in a Memory. Every element occupies a fixed
// slot sized by the codec's bound, so access by index is a single offset
// computation.
type Vec[T any] struct {
	memory   mem.Memory
	codec    storable.Codec[T]
	slotSize uint64
	maxVal   uint32
	length   uint64
}

// NewVec opens the vector stored in memory, initializing an empty one if the
// memory is fresh. It returns ErrUnboundedValue if the codec lacks a fixed
// bound, and ErrIncompatibleLayout if the stored slot size does not match.
func NewVec[T any](memory mem.Memory, codec storable.Codec[T]) (*Vec[T], error) {
	if codec.Bound().IsUnbounded() {
		return nil, fmt.Errorf("%w: vec requires a fixed-size codec", ErrUnboundedValue)
	}
	maxVal := codec.Bound().Max()
	v := &Vec[T]{
		memory:   memory,
		codec:    codec,
		slotSize: 4 + uint64(maxVal),
		maxVal:   maxVal,
	}
	if memory.Size() == 0 {
		if memory.Grow(1) == -1 {
			return nil, mem.ErrOutOfBackingStorage
		}
		return v, v.writeHeader()
	}
	hdr := make([]byte, vecHeaderSize)
	memory.Read(0, hdr)
	if string(hdr[:3]) != vecMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIncompatibleLayout, hdr[:3])
	}
	if hdr[3] != vecVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrIncompatibleLayout, hdr[3], vecVersion)
	}
	if stored := buf.U32LE(hdr[4:]); stored != maxVal {
		return nil, fmt.Errorf("%w: stored slot size %d does not match codec bound %d",
			ErrIncompatibleLayout, stored, maxVal)
	}
	v.length = buf.U64LE(hdr[8:])
	return v, nil
}

func (v *Vec[T]) writeHeader() error {
	hdr := make([]byte, vecHeaderSize)
	copy(hdr, vecMagic)
	hdr[3] = vecVersion
	buf.PutU32LE(hdr[4:], v.maxVal)
	buf.PutU64LE(hdr[8:], v.length)
	v.memory.Write(0, hdr)
	return nil
}

// Len returns the number of elements.
func (v *Vec[T]) Len() uint64 { return v.length }

// IsEmpty reports whether the vector holds no elements.
func (v *Vec[T]) IsEmpty() bool { return v.length == 0 }

func (v *Vec[T]) slotOffset(i uint64) uint64 {
	return vecHeaderSize + i*v.slotSize
}

func (v *Vec[T]) readSlot(i uint64) (T, error) {
	raw := make([]byte, v.slotSize)
	v.memory.Read(v.slotOffset(i), raw)
	n := buf.U32LE(raw)
	if n > v.maxVal {
		var zero T
		return zero, fmt.Errorf("%w: slot %d has length %d, bound is %d", ErrIncompatibleLayout, i, n, v.maxVal)
	}
	return v.codec.Decode(raw[4 : 4+n])
}

func (v *Vec[T]) writeSlot(i uint64, value T) error {
	vb, err := v.codec.Encode(value)
	if err != nil {
		return err
	}
	if uint32(len(vb)) > v.maxVal {
		return fmt.Errorf("%w: value encodes to %d bytes, bound is %d", ErrValueTooLarge, len(vb), v.maxVal)
	}
	raw := make([]byte, v.slotSize)
	buf.PutU32LE(raw, uint32(len(vb)))
	copy(raw[4:], vb)
	v.memory.Write(v.slotOffset(i), raw)
	return nil
}

// Get returns the element at index i, reporting false when i is out of range.
func (v *Vec[T]) Get(i uint64) (T, bool, error) {
	var zero T
	if i >= v.length {
		return zero, false, nil
	}
	val, err := v.readSlot(i)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// Set replaces the element at index i, reporting false when i is out of range.
func (v *Vec[T]) Set(i uint64, value T) (bool, error) {
	if i >= v.length {
		return false, nil
	}
	if err := v.writeSlot(i, value); err != nil {
		return false, err
	}
	return true, nil
}

// Push appends value to the end of the vector.
func (v *Vec[T]) Push(value T) error {
	need := v.slotOffset(v.length) + v.slotSize
	pages := (need + mem.PageSize - 1) / mem.PageSize
	if have := v.memory.Size(); pages > have {
		if v.memory.Grow(pages-have) == -1 {
			return mem.ErrOutOfBackingStorage
		}
	}
	if err := v.writeSlot(v.length, value); err != nil {
		return err
	}
	v.length++
	return v.writeHeader()
}

// Pop removes and returns the last element, reporting false when the vector
// is empty.
func (v *Vec[T]) Pop() (T, bool, error) {
	var zero T
	if v.length == 0 {
		return zero, false, nil
	}
	val, err := v.readSlot(v.length - 1)
	if err != nil {
		return zero, false, err
	}
	v.length--
	if err := v.writeHeader(); err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// Clear removes every element.
func (v *Vec[T]) Clear() error {
	v.length = 0
	return v.writeHeader()
}
