// Package bucket is the coarse-grained counterpart of package pages: virtual
// memories are built from fixed-size runs of pages (buckets) assigned by bump
// allocation, and a released bucket is never reused. The bookkeeping fits in
// one header page, which makes the layout simple to inspect at the cost of
// up to one bucket of slack per memory.
package bucket

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/structures"
)

// DefaultBucketPages is the default bucket size in pages.
const DefaultBucketPages = 8

// maxBuckets is the size of the bucket-owner table; with 8-page buckets it
// tracks 16 GiB of data.
const maxBuckets = 32768

// Header page layout:
//
//	off 0    "BKT" magic
//	off 3    layout version
//	off 4    bucket size in pages, u32
//	off 8    per-owner page counts, 254 * u64
//	off 2040 bucket-owner table, one MemoryID byte per bucket (0xff = unassigned)
const (
	bktMagic      = "BKT"
	bktVersion    = 1
	bktSizesOff   = 8
	bktOwnersOff  = bktSizesOff + 254*8
	bktHeaderSize = bktOwnersOff + maxBuckets
)

// Options configures a Manager.
type Options struct {
	// BucketPages is the bucket size in pages. Zero means DefaultBucketPages.
	// It is fixed at first use; reopening with a different value is an
	// ErrIncompatibleLayout.
	BucketPages uint32
}

// Manager carves one backing Memory into per-owner virtual memories built
// from whole buckets. Page 0 of the backing memory holds the header; buckets
// start on page 1.
//
// Not safe for concurrent use.
type Manager struct {
	backing     mem.Memory
	bucketPages uint32
	sizes       [254]uint64
	owners      [maxBuckets]byte
	nextBucket  uint32
}

// NewManager opens the manager persisted in backing, initializing a fresh
// header when the resource is empty.
func NewManager(backing mem.Memory, opts Options) (*Manager, error) {
	bucketPages := opts.BucketPages
	if bucketPages == 0 {
		bucketPages = DefaultBucketPages
	}
	m := &Manager{backing: backing, bucketPages: bucketPages}
	if backing.Size() == 0 {
		if backing.Grow(1) == -1 {
			return nil, mem.ErrOutOfBackingStorage
		}
		for i := range m.owners {
			m.owners[i] = byte(mem.FreeID)
		}
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}
	hdr := make([]byte, bktHeaderSize)
	backing.Read(0, hdr)
	if string(hdr[:3]) != bktMagic {
		return nil, fmt.Errorf("%w: bad magic %q", structures.ErrIncompatibleLayout, hdr[:3])
	}
	if hdr[3] != bktVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", structures.ErrIncompatibleLayout, hdr[3], bktVersion)
	}
	if stored := buf.U32LE(hdr[4:]); stored != bucketPages {
		return nil, fmt.Errorf("%w: stored bucket size %d pages, opened with %d",
			structures.ErrIncompatibleLayout, stored, bucketPages)
	}
	for i := range m.sizes {
		m.sizes[i] = buf.U64LE(hdr[bktSizesOff+8*i:])
	}
	copy(m.owners[:], hdr[bktOwnersOff:])
	for m.nextBucket < maxBuckets && m.owners[m.nextBucket] != byte(mem.FreeID) {
		m.nextBucket++
	}
	return m, nil
}

func (m *Manager) writeHeader() error {
	hdr := make([]byte, bktHeaderSize)
	copy(hdr, bktMagic)
	hdr[3] = bktVersion
	buf.PutU32LE(hdr[4:], m.bucketPages)
	for i, s := range m.sizes {
		buf.PutU64LE(hdr[bktSizesOff+8*i:], s)
	}
	copy(hdr[bktOwnersOff:], m.owners[:])
	m.backing.Write(0, hdr)
	return nil
}

// Memory returns the virtual memory owned by id.
func (m *Manager) Memory(id mem.MemoryID) (*VirtualMemory, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", mem.ErrInvalidMemoryID, id)
	}
	return &VirtualMemory{mgr: m, owner: id}, nil
}

// ownedBuckets returns id's bucket numbers in assignment order, which is
// also logical order since buckets are only ever appended.
func (m *Manager) ownedBuckets(id mem.MemoryID) []uint32 {
	var buckets []uint32
	for b := uint32(0); b < m.nextBucket; b++ {
		if m.owners[b] == byte(id) {
			buckets = append(buckets, b)
		}
	}
	return buckets
}

// grow extends id by pages, assigning fresh buckets as needed. Returns the
// previous page count, or -1 when the owner table or the backing resource is
// exhausted. No state changes on failure.
func (m *Manager) grow(id mem.MemoryID, pages uint64) (int64, error) {
	prev := m.sizes[id]
	if pages == 0 {
		return int64(prev), nil
	}
	bp := uint64(m.bucketPages)
	total := prev + pages
	if total < prev || total > ^uint64(0)-bp {
		return -1, nil
	}
	have := (prev + bp - 1) / bp
	need := (total + bp - 1) / bp
	fresh := need - have
	if fresh > maxBuckets-uint64(m.nextBucket) {
		return -1, nil
	}
	if fresh > 0 {
		// Buckets are bump-allocated, so the new ones sit at the end of the
		// backing memory.
		target := 1 + (uint64(m.nextBucket)+fresh)*bp
		if cur := m.backing.Size(); cur < target {
			if m.backing.Grow(target-cur) == -1 {
				return -1, nil
			}
		}
		for i := uint64(0); i < fresh; i++ {
			m.owners[m.nextBucket] = byte(id)
			m.nextBucket++
		}
	}
	m.sizes[id] = prev + pages
	if err := m.writeHeader(); err != nil {
		return -1, err
	}
	return int64(prev), nil
}

// physicalPage resolves one logical page of id to a backing page.
func (m *Manager) physicalPage(id mem.MemoryID, logical uint64) (uint64, bool) {
	if logical >= m.sizes[id] {
		return 0, false
	}
	bp := uint64(m.bucketPages)
	buckets := m.ownedBuckets(id)
	ord := logical / bp
	if ord >= uint64(len(buckets)) {
		return 0, false
	}
	return 1 + uint64(buckets[ord])*bp + logical%bp, true
}
