// Package mem defines the flat, page-growable byte resource every stablekit
// structure is built over, together with its concrete implementations: a
// heap-backed vector memory for tests and local runs, a page-window view, a
// profiling decorator, and a durable memory-mapped file memory.
package mem

import (
	"errors"
	"fmt"
)

// PageSize is the fixed page size of every Memory in bytes.
const PageSize uint64 = 65536

// Memory is the flat byte-addressable resource contract.
//
// Size and Grow operate in pages of PageSize bytes. Grow returns the
// previous page count, or -1 when the resource cannot grow any further; a
// -1 must be propagated by callers as an allocation failure, never
// truncated into a partial success.
//
// Read and Write panic with an error wrapping ErrAccessOutOfBounds when the
// byte range [offset, offset+len) exceeds Size()*PageSize. Out-of-bounds
// access is a programmer error, distinct from allocation exhaustion.
type Memory interface {
	Size() uint64
	Grow(pages uint64) int64
	Read(offset uint64, dst []byte)
	Write(offset uint64, src []byte)
}

// MemoryID identifies one logical virtual memory within a manager.
// Valid application IDs are 0..253; 254 is reserved and 255 tags free pages.
type MemoryID uint8

const (
	// MaxMemoryID is the largest MemoryID an application may use.
	MaxMemoryID MemoryID = 253
	// ReservedID is reserved for future manager metadata.
	ReservedID MemoryID = 254
	// FreeID is the sentinel owner of pages released by a Forget call.
	FreeID MemoryID = 255
)

// Valid reports whether id may be handed to a manager by an application.
func (id MemoryID) Valid() bool { return id <= MaxMemoryID }

var (
	// ErrOutOfBackingStorage indicates the physical resource refused to grow.
	ErrOutOfBackingStorage = errors.New("mem: out of backing storage")
	// ErrAccessOutOfBounds indicates a read or write beyond the current size.
	ErrAccessOutOfBounds = errors.New("mem: access out of bounds")
	// ErrInvalidMemoryID indicates use of a reserved or sentinel MemoryID.
	ErrInvalidMemoryID = errors.New("mem: invalid memory id")
)

// outOfBounds panics with the canonical out-of-bounds error.
func outOfBounds(op string, offset uint64, n int, sizeBytes uint64) {
	panic(fmt.Errorf("%w: %s [%d, %d) beyond %d bytes", ErrAccessOutOfBounds, op, offset, offset+uint64(n), sizeBytes))
}

// InBounds reports whether the byte range [offset, offset+n) fits within
// sizeBytes. The comparison cannot wrap for any offset.
func InBounds(offset uint64, n int, sizeBytes uint64) bool {
	return offset <= sizeBytes && uint64(n) <= sizeBytes-offset
}

// PagesSpanned returns how many pages the byte range [offset, offset+n)
// touches. A zero-length range touches none.
func PagesSpanned(offset uint64, n int) uint64 {
	if n == 0 {
		return 0
	}
	start := offset / PageSize
	end := (offset + uint64(n) + PageSize - 1) / PageSize
	return end - start
}
