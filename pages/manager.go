// Package pages multiplexes up to 254 independently growable virtual
// memories onto one backing Memory at single-page granularity.
//
// The manager reserves a statically addressed region at the front of the
// backing resource for its page index, an ordered map from (owner, logical
// page) to a physical page in the data region behind it. Ownership is
// reconstructed on reopen purely by reloading the index, so every virtual
// memory handed out over the same backing resource sees its siblings'
// allocations. Pages released by Forget are retagged to the free sentinel
// and recycled by later grows; nothing is ever returned to the backing
// resource.
package pages

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
	"github.com/joshuapare/stablekit/structures"
)

// DefaultIndexPages is the default size of the reserved index region. It
// bounds how many physical pages one manager can track.
const DefaultIndexPages = 118

// Options configures a Manager.
type Options struct {
	// IndexPages is the page count of the reserved index region.
	// Zero means DefaultIndexPages. Reopening an existing resource with a
	// different value misreads the regions, so pick it once per resource.
	IndexPages uint64
}

// pageKey addresses one page of one virtual memory in the index. The owner
// leads the encoding, so one owner's pages are contiguous in the tree and the
// free list is just the pages tagged with the free sentinel.
type pageKey struct {
	owner   mem.MemoryID
	logical uint64
}

type pageKeyCodec struct{}

func (pageKeyCodec) Bound() storable.Bound { return storable.Fixed(9) }

func (pageKeyCodec) Encode(k pageKey) ([]byte, error) {
	out := make([]byte, 9)
	out[0] = byte(k.owner)
	buf.PutU64BE(out[1:], k.logical)
	return out, nil
}

func (pageKeyCodec) Decode(b []byte) (pageKey, error) {
	if len(b) != 9 {
		return pageKey{}, fmt.Errorf("pages: page key wants 9 bytes, got %d", len(b))
	}
	return pageKey{owner: mem.MemoryID(b[0]), logical: buf.U64BE(b[1:])}, nil
}

// Manager carves one backing Memory into per-owner virtual memories.
//
// Its methods are not safe for concurrent use; neither are the virtual
// memories it hands out.
type Manager struct {
	backing mem.Memory
	index   *structures.BTreeMap[pageKey, uint64]
	data    *mem.Restricted
}

// NewManager opens the manager persisted in backing, initializing a fresh
// layout when the resource is empty. It returns
// structures.ErrIncompatibleLayout when the index region holds something
// other than a page index.
func NewManager(backing mem.Memory, opts Options) (*Manager, error) {
	indexPages := opts.IndexPages
	if indexPages == 0 {
		indexPages = DefaultIndexPages
	}
	indexMem := mem.NewRestricted(backing, 0, indexPages)
	index, err := structures.NewBTreeMap(indexMem, pageKeyCodec{}, storable.U64())
	if err != nil {
		return nil, fmt.Errorf("pages: opening page index: %w", err)
	}
	return &Manager{
		backing: backing,
		index:   index,
		data:    mem.NewRestricted(backing, indexPages, ^uint64(0)),
	}, nil
}

// Memory returns the virtual memory owned by id, creating an empty one if it
// has no pages yet. It returns mem.ErrInvalidMemoryID for the reserved and
// sentinel IDs.
func (m *Manager) Memory(id mem.MemoryID) (*VirtualMemory, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %d", mem.ErrInvalidMemoryID, id)
	}
	return &VirtualMemory{mgr: m, owner: id}, nil
}

// ownedPages returns id's logical-to-physical mappings in logical order.
func (m *Manager) ownedPages(id mem.MemoryID) ([]uint64, error) {
	it, err := m.index.Range(pageKey{owner: id}, pageKey{owner: id, logical: ^uint64(0)})
	if err != nil {
		return nil, err
	}
	var phys []uint64
	for it.Next() {
		phys = append(phys, it.Value())
	}
	return phys, it.Err()
}

// sizeOf returns how many pages id currently owns, re-derived from the
// persisted index on every call.
func (m *Manager) sizeOf(id mem.MemoryID) (uint64, error) {
	pages, err := m.ownedPages(id)
	return uint64(len(pages)), err
}

// takeFree pops up to n pages from the free list, returning their physical
// page numbers.
func (m *Manager) takeFree(n uint64) ([]uint64, error) {
	free, err := m.ownedPages(mem.FreeID)
	if err != nil {
		return nil, err
	}
	if uint64(len(free)) > n {
		free = free[:n]
	}
	for _, phys := range free {
		if _, _, err := m.index.Remove(pageKey{owner: mem.FreeID, logical: phys}); err != nil {
			return nil, err
		}
	}
	return free, nil
}

// putFree returns physical pages to the free list. Free entries use the
// physical page as the logical key, which keeps them unique.
func (m *Manager) putFree(phys []uint64) error {
	for _, p := range phys {
		if _, _, err := m.index.Insert(pageKey{owner: mem.FreeID, logical: p}, p); err != nil {
			return err
		}
	}
	return nil
}

// grow extends id by pages, preferring recycled free pages over growing the
// data region. Returns the previous page count, or -1 when the backing
// resource refuses; a refused grow returns every drained free page to the
// free list first.
func (m *Manager) grow(id mem.MemoryID, pages uint64) (int64, error) {
	prev, err := m.sizeOf(id)
	if err != nil {
		return -1, err
	}
	if pages == 0 {
		return int64(prev), nil
	}
	drained, err := m.takeFree(pages)
	if err != nil {
		return -1, err
	}
	phys := drained
	if missing := pages - uint64(len(drained)); missing > 0 {
		base := m.data.Grow(missing)
		if base == -1 {
			if err := m.putFree(drained); err != nil {
				return -1, err
			}
			return -1, nil
		}
		for i := uint64(0); i < missing; i++ {
			phys = append(phys, uint64(base)+i)
		}
	}
	for i, p := range phys {
		if _, _, err := m.index.Insert(pageKey{owner: id, logical: prev + uint64(i)}, p); err != nil {
			return -1, err
		}
	}
	return int64(prev), nil
}

// forget releases every page id owns by retagging it to the free sentinel.
// The page contents are left untouched.
func (m *Manager) forget(id mem.MemoryID) error {
	phys, err := m.ownedPages(id)
	if err != nil {
		return err
	}
	for i := range phys {
		if _, _, err := m.index.Remove(pageKey{owner: id, logical: uint64(i)}); err != nil {
			return err
		}
	}
	return m.putFree(phys)
}

// physicalPage resolves one logical page of id, reporting false when id does
// not own it.
func (m *Manager) physicalPage(id mem.MemoryID, logical uint64) (uint64, bool, error) {
	return m.index.Get(pageKey{owner: id, logical: logical})
}

// Mapping is one page-index entry, exposed for inspection tooling.
type Mapping struct {
	Owner    mem.MemoryID
	Logical  uint64
	Physical uint64
}

// Mappings returns every page-index entry in (owner, logical) order,
// including the free-sentinel entries.
func (m *Manager) Mappings() ([]Mapping, error) {
	it := m.index.Iter()
	var out []Mapping
	for it.Next() {
		k := it.Key()
		out = append(out, Mapping{Owner: k.owner, Logical: k.logical, Physical: it.Value()})
	}
	return out, it.Err()
}

// DataPages returns how many pages the data region has claimed from the
// backing resource.
func (m *Manager) DataPages() uint64 { return m.data.Size() }
