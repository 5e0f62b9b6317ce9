package structures

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
)

// B-tree geometry. Minimum degree 6: nodes hold 5..11 entries (the root may
// hold fewer) and internal nodes one more child than entries.
const (
	btDegree      = 6
	btMaxEntries  = 2*btDegree - 1
	btMinEntries  = btDegree - 1
	btMaxChildren = btMaxEntries + 1
)

// Node layout:
//
//	off 0  "ND"
//	off 2  leaf flag (1 = leaf)
//	off 3  entry count
//	off 4  child addresses, btMaxChildren * 8 bytes (zero for leaves)
//	off 100 entries, btMaxEntries slots of (keyLen u16 | key pad | valLen u32 | val pad)
const btNodeEntryOff = 4 + btMaxChildren*8

type btNode struct {
	addr     uint64
	leaf     bool
	keys     [][]byte
	vals     [][]byte
	children []uint64
}

// search returns the position of key in the node, or the child index to
// descend into when absent.
func (n *btNode) search(key []byte) (int, bool) {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		switch c := bytes.Compare(n.keys[mid], key); {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// insertEntry places (key, val) at position i.
func (n *btNode) insertEntry(i int, key, val []byte) {
	n.keys = append(n.keys, nil)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key
	n.vals = append(n.vals, nil)
	copy(n.vals[i+1:], n.vals[i:])
	n.vals[i] = val
}

// removeEntry drops the entry at position i.
func (n *btNode) removeEntry(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.vals = append(n.vals[:i], n.vals[i+1:]...)
}

// insertChild places addr at child position i.
func (n *btNode) insertChild(i int, addr uint64) {
	n.children = append(n.children, 0)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = addr
}

// removeChild drops the child at position i.
func (n *btNode) removeChild(i int) {
	n.children = append(n.children[:i], n.children[i+1:]...)
}

// nodeSize returns the byte size of one node for the given entry bounds.
func nodeSize(maxKey, maxVal uint32) uint64 {
	entry := uint64(2) + uint64(maxKey) + 4 + uint64(maxVal)
	return btNodeEntryOff + btMaxEntries*entry
}

func (m *BTreeMap[K, V]) readNode(addr uint64) (*btNode, error) {
	raw := make([]byte, m.nodeSize)
	m.memory.Read(addr, raw)
	if raw[0] != 'N' || raw[1] != 'D' {
		return nil, fmt.Errorf("%w: bad node signature at %d", ErrIncompatibleLayout, addr)
	}
	n := &btNode{addr: addr, leaf: raw[2] == 1}
	count := int(raw[3])
	if count > btMaxEntries {
		return nil, fmt.Errorf("%w: node at %d claims %d entries", ErrIncompatibleLayout, addr, count)
	}
	if !n.leaf {
		n.children = make([]uint64, count+1)
		for i := range n.children {
			n.children[i] = buf.U64LE(raw[4+8*i:])
		}
	}
	entry := int(m.entrySize)
	for i := 0; i < count; i++ {
		slot := raw[btNodeEntryOff+i*entry:]
		kl := int(buf.U16LE(slot))
		k, ok := buf.Slice(slot, 2, kl)
		if !ok || kl > int(m.maxKey) {
			return nil, fmt.Errorf("%w: node at %d entry %d has key length %d", ErrIncompatibleLayout, addr, i, kl)
		}
		vl := int(buf.U32LE(slot[2+int(m.maxKey):]))
		v, ok := buf.Slice(slot, 2+int(m.maxKey)+4, vl)
		if !ok || vl > int(m.maxVal) {
			return nil, fmt.Errorf("%w: node at %d entry %d has value length %d", ErrIncompatibleLayout, addr, i, vl)
		}
		n.keys = append(n.keys, append([]byte(nil), k...))
		n.vals = append(n.vals, append([]byte(nil), v...))
	}
	return n, nil
}

func (m *BTreeMap[K, V]) writeNode(n *btNode) error {
	raw := make([]byte, m.nodeSize)
	raw[0], raw[1] = 'N', 'D'
	if n.leaf {
		raw[2] = 1
	}
	raw[3] = byte(len(n.keys))
	for i, c := range n.children {
		buf.PutU64LE(raw[4+8*i:], c)
	}
	entry := int(m.entrySize)
	for i := range n.keys {
		slot := raw[btNodeEntryOff+i*entry:]
		buf.PutU16LE(slot, uint16(len(n.keys[i])))
		copy(slot[2:], n.keys[i])
		buf.PutU32LE(slot[2+int(m.maxKey):], uint32(len(n.vals[i])))
		copy(slot[2+int(m.maxKey)+4:], n.vals[i])
	}
	m.memory.Write(n.addr, raw)
	return nil
}
