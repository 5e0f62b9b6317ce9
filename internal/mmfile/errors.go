// Package mmfile implements the growable memory-mapped file backing
// mem.FileMemory. Platforms without mmap fall back to a heap buffer that is
// written out on Flush.
package mmfile

import "errors"

var (
	// ErrOutOfAddressSpace indicates a resize beyond the reserved mapping.
	ErrOutOfAddressSpace = errors.New("mmfile: out of reserved address space")
	// ErrOutOfRange indicates an access beyond the current file length.
	ErrOutOfRange = errors.New("mmfile: access out of range")
)
