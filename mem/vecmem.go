package mem

// VecMemory is a heap-backed Memory used in tests and host-side runs.
// It grows without bound (within available heap).
type VecMemory struct {
	buf []byte
}

// NewVecMemory returns an empty heap-backed memory.
func NewVecMemory() *VecMemory {
	return &VecMemory{}
}

// Size returns the current size in pages.
func (m *VecMemory) Size() uint64 {
	return uint64(len(m.buf)) / PageSize
}

// Grow extends the memory by pages zeroed pages and returns the previous
// page count.
func (m *VecMemory) Grow(pages uint64) int64 {
	prev := m.Size()
	m.buf = append(m.buf, make([]byte, pages*PageSize)...)
	return int64(prev)
}

// Read copies bytes starting at offset into dst.
func (m *VecMemory) Read(offset uint64, dst []byte) {
	if !InBounds(offset, len(dst), uint64(len(m.buf))) {
		outOfBounds("read", offset, len(dst), uint64(len(m.buf)))
	}
	copy(dst, m.buf[offset:])
}

// Write copies src into the memory starting at offset.
func (m *VecMemory) Write(offset uint64, src []byte) {
	if !InBounds(offset, len(src), uint64(len(m.buf))) {
		outOfBounds("write", offset, len(src), uint64(len(m.buf)))
	}
	copy(m.buf[offset:], src)
}
