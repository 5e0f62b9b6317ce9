package structures

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// ringIndices is the RingBuffer bookkeeping persisted in its Cell: the vec
// position of the newest element and the configured capacity.
type ringIndices struct {
	latest   uint64
	capacity uint64
}

type ringIndicesCodec struct{}

func (ringIndicesCodec) Bound() storable.Bound { return storable.Fixed(16) }

func (ringIndicesCodec) Encode(v ringIndices) ([]byte, error) {
	out := make([]byte, 16)
	buf.PutU64LE(out, v.latest)
	buf.PutU64LE(out[8:], v.capacity)
	return out, nil
}

func (ringIndicesCodec) Decode(b []byte) (ringIndices, error) {
	if len(b) != 16 {
		return ringIndices{}, fmt.Errorf("%w: ring indices of %d bytes", ErrIncompatibleLayout, len(b))
	}
	return ringIndices{latest: buf.U64LE(b), capacity: buf.U64LE(b[8:])}, nil
}

// RingBuffer keeps the most recent capacity elements, overwriting the oldest
// once full. Elements live in a Vec over one memory; the newest-element
// position and the capacity live in a Cell over another, so reopening both
// memories restores the buffer.
type RingBuffer[T any] struct {
	data    *Vec[T]
	indices *Cell[ringIndices]
	idx     ringIndices
}

// NewRingBuffer opens the ring buffer stored in the given memories,
// initializing an empty one with the given capacity if the indices memory is
// fresh. Reopening an existing buffer with a different capacity resizes it,
// keeping the newest elements.
func NewRingBuffer[T any](data, indices mem.Memory, codec storable.Codec[T], capacity uint64) (*RingBuffer[T], error) {
	if capacity == 0 {
		return nil, fmt.Errorf("structures: ring buffer capacity must be positive")
	}
	vec, err := NewVec(data, codec)
	if err != nil {
		return nil, err
	}
	cell, err := NewCell[ringIndices](indices, ringIndicesCodec{})
	if err != nil {
		return nil, err
	}
	r := &RingBuffer[T]{data: vec, indices: cell}
	stored, ok, err := cell.Get()
	if err != nil {
		return nil, err
	}
	if !ok {
		r.idx = ringIndices{capacity: capacity}
		if _, _, err := cell.Set(r.idx); err != nil {
			return nil, err
		}
		return r, nil
	}
	r.idx = stored
	if stored.capacity != capacity {
		if err := r.Resize(capacity); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Len returns the number of elements, at most the capacity.
func (r *RingBuffer[T]) Len() uint64 { return r.data.Len() }

// Capacity returns the configured capacity.
func (r *RingBuffer[T]) Capacity() uint64 { return r.idx.capacity }

func (r *RingBuffer[T]) saveIndices() error {
	_, _, err := r.indices.Set(r.idx)
	return err
}

// Push appends value, overwriting the oldest element when full.
func (r *RingBuffer[T]) Push(value T) error {
	n := r.data.Len()
	if n < r.idx.capacity {
		if err := r.data.Push(value); err != nil {
			return err
		}
		r.idx.latest = n
		return r.saveIndices()
	}
	r.idx.latest = (r.idx.latest + 1) % r.idx.capacity
	if _, err := r.data.Set(r.idx.latest, value); err != nil {
		return err
	}
	return r.saveIndices()
}

// Get returns the element at vec position i, regardless of age ordering.
func (r *RingBuffer[T]) Get(i uint64) (T, bool, error) {
	return r.data.Get(i)
}

// GetFromEnd returns the element n places before the newest; GetFromEnd(0) is
// the newest element. It reports false when n is not smaller than Len.
func (r *RingBuffer[T]) GetFromEnd(n uint64) (T, bool, error) {
	var zero T
	length := r.data.Len()
	if n >= length {
		return zero, false, nil
	}
	return r.data.Get((r.idx.latest + length - n) % length)
}

// Resize changes the capacity, keeping the newest elements when shrinking.
func (r *RingBuffer[T]) Resize(capacity uint64) error {
	if capacity == 0 {
		return fmt.Errorf("structures: ring buffer capacity must be positive")
	}
	keep := r.data.Len()
	if keep > capacity {
		keep = capacity
	}
	// Oldest first so pushes rebuild the age order.
	kept := make([]T, 0, keep)
	for n := keep; n > 0; n-- {
		v, ok, err := r.GetFromEnd(n - 1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: ring element missing during resize", ErrIncompatibleLayout)
		}
		kept = append(kept, v)
	}
	if err := r.data.Clear(); err != nil {
		return err
	}
	for _, v := range kept {
		if err := r.data.Push(v); err != nil {
			return err
		}
	}
	r.idx.capacity = capacity
	if keep > 0 {
		r.idx.latest = keep - 1
	} else {
		r.idx.latest = 0
	}
	return r.saveIndices()
}

// Clear removes every element, keeping the capacity.
func (r *RingBuffer[T]) Clear() error {
	if err := r.data.Clear(); err != nil {
		return err
	}
	r.idx.latest = 0
	return r.saveIndices()
}
