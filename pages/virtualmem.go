package pages

import (
	"fmt"

	"github.com/joshuapare/stablekit/mem"
)

// VirtualMemory is one owner's view of a managed backing resource. It
// implements mem.Memory; logical pages are contiguous from the owner's point
// of view regardless of where the manager placed them physically.
//
// Size is re-derived from the persisted index on every call, so a grow
// performed through one handle is visible through every other handle over
// the same backing resource.
type VirtualMemory struct {
	mgr   *Manager
	owner mem.MemoryID
}

// ID returns the owning memory ID.
func (v *VirtualMemory) ID() mem.MemoryID { return v.owner }

// Size returns the owner's current page count.
func (v *VirtualMemory) Size() uint64 {
	n, err := v.mgr.sizeOf(v.owner)
	if err != nil {
		panic(fmt.Errorf("pages: reading page index: %w", err))
	}
	return n
}

// Grow extends the memory by pages, recycling forgotten pages before
// claiming new ones from the backing resource. Returns the previous page
// count, or -1 when the backing resource cannot satisfy the request.
func (v *VirtualMemory) Grow(pages uint64) int64 {
	prev, err := v.mgr.grow(v.owner, pages)
	if err != nil {
		panic(fmt.Errorf("pages: updating page index: %w", err))
	}
	return prev
}

// Forget releases every page of this memory back to the manager's free list.
// The data is left in place but must be considered gone; a later Grow may
// hand the pages to any owner.
func (v *VirtualMemory) Forget() error {
	return v.mgr.forget(v.owner)
}

// Read copies bytes starting at offset into dst. It panics with an error
// wrapping mem.ErrAccessOutOfBounds when the range exceeds the current size.
func (v *VirtualMemory) Read(offset uint64, dst []byte) {
	v.access("read", offset, dst, func(physOff uint64, b []byte) {
		v.mgr.data.Read(physOff, b)
	})
}

// Write copies src into the memory starting at offset. It panics with an
// error wrapping mem.ErrAccessOutOfBounds when the range exceeds the current
// size.
func (v *VirtualMemory) Write(offset uint64, src []byte) {
	v.access("write", offset, src, func(physOff uint64, b []byte) {
		v.mgr.data.Write(physOff, b)
	})
}

// access splits the byte range [offset, offset+len(b)) at page boundaries,
// resolves each logical page through the index and applies op to the
// physical range backing each piece.
func (v *VirtualMemory) access(op string, offset uint64, b []byte, do func(physOff uint64, b []byte)) {
	for len(b) > 0 {
		logical := offset / mem.PageSize
		pageOff := offset % mem.PageSize
		n := mem.PageSize - pageOff
		if n > uint64(len(b)) {
			n = uint64(len(b))
		}
		phys, ok, err := v.mgr.physicalPage(v.owner, logical)
		if err != nil {
			panic(fmt.Errorf("pages: reading page index: %w", err))
		}
		if !ok {
			panic(fmt.Errorf("%w: %s [%d, %d) beyond %d bytes",
				mem.ErrAccessOutOfBounds, op, offset, offset+uint64(len(b)), v.Size()*mem.PageSize))
		}
		do(phys*mem.PageSize+pageOff, b[:n])
		offset += n
		b = b[n:]
	}
}
