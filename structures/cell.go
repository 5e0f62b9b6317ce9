package structures

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Header layout:
//
//	off 0  "CEL" magic
//	off 3  layout version
//	off 4  value length, u32 (math.MaxUint32 = empty)
//	off 8  value bytes
const (
	cellMagic      = "CEL"
	cellVersion    = 1
	cellHeaderSize = 8
	cellEmpty      = 0xffffffff
)

// Cell stores a single optional value in a Memory.
type Cell[T any] struct {
	memory mem.Memory
	codec  storable.Codec[T]
	length uint32
}

// NewCell opens the cell stored in memory, initializing an empty one if the
// memory is fresh.
func NewCell[T any](memory mem.Memory, codec storable.Codec[T]) (*Cell[T], error) {
	c := &Cell[T]{memory: memory, codec: codec, length: cellEmpty}
	if memory.Size() == 0 {
		if memory.Grow(1) == -1 {
			return nil, mem.ErrOutOfBackingStorage
		}
		return c, c.writeHeader()
	}
	hdr := make([]byte, cellHeaderSize)
	memory.Read(0, hdr)
	if string(hdr[:3]) != cellMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIncompatibleLayout, hdr[:3])
	}
	if hdr[3] != cellVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrIncompatibleLayout, hdr[3], cellVersion)
	}
	c.length = buf.U32LE(hdr[4:])
	return c, nil
}

func (c *Cell[T]) writeHeader() error {
	hdr := make([]byte, cellHeaderSize)
	copy(hdr, cellMagic)
	hdr[3] = cellVersion
	buf.PutU32LE(hdr[4:], c.length)
	c.memory.Write(0, hdr)
	return nil
}

// Get returns the stored value, reporting whether one is present.
func (c *Cell[T]) Get() (T, bool, error) {
	var zero T
	if c.length == cellEmpty {
		return zero, false, nil
	}
	raw := make([]byte, c.length)
	c.memory.Read(cellHeaderSize, raw)
	v, err := c.codec.Decode(raw)
	return v, err == nil, err
}

// Set replaces the stored value, returning the previous one if present.
func (c *Cell[T]) Set(value T) (T, bool, error) {
	var zero T
	vb, err := c.codec.Encode(value)
	if err != nil {
		return zero, false, err
	}
	if b := c.codec.Bound(); !b.IsUnbounded() && uint32(len(vb)) > b.Max() {
		return zero, false, fmt.Errorf("%w: value encodes to %d bytes, bound is %d", ErrValueTooLarge, len(vb), b.Max())
	}
	prev, had, err := c.Get()
	if err != nil {
		return zero, false, err
	}
	need := uint64(cellHeaderSize) + uint64(len(vb))
	pages := (need + mem.PageSize - 1) / mem.PageSize
	if have := c.memory.Size(); pages > have {
		if c.memory.Grow(pages-have) == -1 {
			return zero, false, mem.ErrOutOfBackingStorage
		}
	}
	c.memory.Write(cellHeaderSize, vb)
	c.length = uint32(len(vb))
	if err := c.writeHeader(); err != nil {
		return zero, false, err
	}
	return prev, had, nil
}

// Remove clears the cell, returning the value it held if present.
func (c *Cell[T]) Remove() (T, bool, error) {
	var zero T
	prev, had, err := c.Get()
	if err != nil {
		return zero, false, err
	}
	c.length = cellEmpty
	if err := c.writeHeader(); err != nil {
		return zero, false, err
	}
	if !had {
		return zero, false, nil
	}
	return prev, true, nil
}
