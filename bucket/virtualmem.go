package bucket

import (
	"fmt"

	"github.com/joshuapare/stablekit/mem"
)

// VirtualMemory is one owner's view of a bucket-managed backing resource.
// It implements mem.Memory.
type VirtualMemory struct {
	mgr   *Manager
	owner mem.MemoryID
}

// ID returns the owning memory ID.
func (v *VirtualMemory) ID() mem.MemoryID { return v.owner }

// Size returns the owner's current page count.
func (v *VirtualMemory) Size() uint64 { return v.mgr.sizes[v.owner] }

// Grow extends the memory by pages, claiming whole buckets as needed.
// Returns the previous page count, or -1 when the request cannot be
// satisfied.
func (v *VirtualMemory) Grow(pages uint64) int64 {
	prev, err := v.mgr.grow(v.owner, pages)
	if err != nil {
		panic(fmt.Errorf("bucket: persisting header: %w", err))
	}
	return prev
}

// Read copies bytes starting at offset into dst. It panics with an error
// wrapping mem.ErrAccessOutOfBounds when the range exceeds the current size.
func (v *VirtualMemory) Read(offset uint64, dst []byte) {
	v.access("read", offset, dst, func(physOff uint64, b []byte) {
		v.mgr.backing.Read(physOff, b)
	})
}

// Write copies src into the memory starting at offset. It panics with an
// error wrapping mem.ErrAccessOutOfBounds when the range exceeds the current
// size.
func (v *VirtualMemory) Write(offset uint64, src []byte) {
	v.access("write", offset, src, func(physOff uint64, b []byte) {
		v.mgr.backing.Write(physOff, b)
	})
}

func (v *VirtualMemory) access(op string, offset uint64, b []byte, do func(physOff uint64, b []byte)) {
	if !mem.InBounds(offset, len(b), v.Size()*mem.PageSize) {
		panic(fmt.Errorf("%w: %s [%d, %d) beyond %d bytes",
			mem.ErrAccessOutOfBounds, op, offset, offset+uint64(len(b)), v.Size()*mem.PageSize))
	}
	for len(b) > 0 {
		logical := offset / mem.PageSize
		pageOff := offset % mem.PageSize
		n := mem.PageSize - pageOff
		if n > uint64(len(b)) {
			n = uint64(len(b))
		}
		phys, ok := v.mgr.physicalPage(v.owner, logical)
		if !ok {
			panic(fmt.Errorf("%w: %s [%d, %d) beyond %d bytes",
				mem.ErrAccessOutOfBounds, op, offset, offset+uint64(len(b)), v.Size()*mem.PageSize))
		}
		do(phys*mem.PageSize+pageOff, b[:n])
		offset += n
		b = b[n:]
	}
}
