package structures

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Index memory layout:
//
//	off 0  "LOG" magic
//	off 3  layout version
//	off 8  entry count, u64
//	off 16 end offsets into the data memory, u64 each
//
// The data memory holds entry payloads back to back from offset 0; entry i
// spans [endOffset(i-1), endOffset(i)).
const (
	logMagic      = "LOG"
	logVersion    = 1
	logHeaderSize = 16
)

// Log is an append-only list of variable-length entries split across two
// memories: one for the offset index and one for entry payloads.
type Log[T any] struct {
	index  mem.Memory
	data   mem.Memory
	codec  storable.Codec[T]
	length uint64
}

// NewLog opens the log stored in the given memories, initializing an empty
// one if the index memory is fresh.
func NewLog[T any](index, data mem.Memory, codec storable.Codec[T]) (*Log[T], error) {
	l := &Log[T]{index: index, data: data, codec: codec}
	if index.Size() == 0 {
		if index.Grow(1) == -1 {
			return nil, mem.ErrOutOfBackingStorage
		}
		return l, l.writeHeader()
	}
	hdr := make([]byte, logHeaderSize)
	index.Read(0, hdr)
	if string(hdr[:3]) != logMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIncompatibleLayout, hdr[:3])
	}
	if hdr[3] != logVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrIncompatibleLayout, hdr[3], logVersion)
	}
	l.length = buf.U64LE(hdr[8:])
	return l, nil
}

func (l *Log[T]) writeHeader() error {
	hdr := make([]byte, logHeaderSize)
	copy(hdr, logMagic)
	hdr[3] = logVersion
	buf.PutU64LE(hdr[8:], l.length)
	l.index.Write(0, hdr)
	return nil
}

// Len returns the number of entries.
func (l *Log[T]) Len() uint64 { return l.length }

// SizeBytes returns the total payload bytes appended so far.
func (l *Log[T]) SizeBytes() uint64 { return l.endOffset(l.length) }

// endOffset returns the data offset one past entry i-1; endOffset(0) is 0.
func (l *Log[T]) endOffset(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	raw := make([]byte, 8)
	l.index.Read(logHeaderSize+(i-1)*8, raw)
	return buf.U64LE(raw)
}

func ensureBytes(m mem.Memory, need uint64) error {
	pages := (need + mem.PageSize - 1) / mem.PageSize
	if have := m.Size(); pages > have {
		if m.Grow(pages-have) == -1 {
			return mem.ErrOutOfBackingStorage
		}
	}
	return nil
}

// Append writes value at the end of the log and returns the new length.
func (l *Log[T]) Append(value T) (uint64, error) {
	vb, err := l.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	if b := l.codec.Bound(); !b.IsUnbounded() && uint32(len(vb)) > b.Max() {
		return 0, fmt.Errorf("%w: entry encodes to %d bytes, bound is %d", ErrValueTooLarge, len(vb), b.Max())
	}
	start := l.endOffset(l.length)
	if err := ensureBytes(l.data, start+uint64(len(vb))); err != nil {
		return 0, err
	}
	if err := ensureBytes(l.index, logHeaderSize+(l.length+1)*8); err != nil {
		return 0, err
	}
	l.data.Write(start, vb)
	end := make([]byte, 8)
	buf.PutU64LE(end, start+uint64(len(vb)))
	l.index.Write(logHeaderSize+l.length*8, end)
	l.length++
	if err := l.writeHeader(); err != nil {
		return 0, err
	}
	return l.length, nil
}

// Get returns entry i, reporting false when i is out of range.
func (l *Log[T]) Get(i uint64) (T, bool, error) {
	var zero T
	if i >= l.length {
		return zero, false, nil
	}
	start := l.endOffset(i)
	end := l.endOffset(i + 1)
	raw := make([]byte, end-start)
	l.data.Read(start, raw)
	v, err := l.codec.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Clear removes every entry. The memories keep their pages; only the offsets
// are reset.
func (l *Log[T]) Clear() error {
	l.length = 0
	return l.writeHeader()
}
