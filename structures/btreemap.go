package structures

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Header layout:
//
//	off 0  "BTM" magic
//	off 3  layout version
//	off 4  max key size, u32
//	off 8  max value size, u32
//	off 12 root node address, u64 (0 = empty tree)
//	off 20 entry count, u64
//	off 28 free-list head, u64 (0 = empty list)
//	off 36 bump-allocation cursor, u64
const (
	btMagic      = "BTM"
	btVersion    = 1
	btHeaderSize = 64
)

// BTreeMap is an ordered map stored entirely inside a Memory. Keys are
// ordered by the byte order of their encoding; see the storable package for
// codecs whose byte order matches the natural order of the value.
//
// Both codecs must carry fixed bounds. Node space freed by removals is kept
// on a free list and reused by later insertions; it is never returned to the
// underlying memory.
type BTreeMap[K, V any] struct {
	memory    mem.Memory
	keyCodec  storable.Codec[K]
	valCodec  storable.Codec[V]
	maxKey    uint32
	maxVal    uint32
	root      uint64
	length    uint64
	freeHead  uint64
	next      uint64
	nodeSize  uint64
	entrySize uint64
}

// NewBTreeMap opens the map stored in memory, initializing a fresh header if
// the memory is empty. It returns ErrUnboundedValue if either codec lacks a
// fixed bound, and ErrIncompatibleLayout if the memory holds data written
// under a different layout or different bounds.
func NewBTreeMap[K, V any](memory mem.Memory, keyCodec storable.Codec[K], valCodec storable.Codec[V]) (*BTreeMap[K, V], error) {
	if keyCodec.Bound().IsUnbounded() || valCodec.Bound().IsUnbounded() {
		return nil, fmt.Errorf("%w: btree map requires fixed-size codecs", ErrUnboundedValue)
	}
	maxKey := keyCodec.Bound().Max()
	maxVal := valCodec.Bound().Max()
	m := &BTreeMap[K, V]{
		memory:    memory,
		keyCodec:  keyCodec,
		valCodec:  valCodec,
		maxKey:    maxKey,
		maxVal:    maxVal,
		nodeSize:  nodeSize(maxKey, maxVal),
		entrySize: 2 + uint64(maxKey) + 4 + uint64(maxVal),
	}
	if memory.Size() == 0 {
		if memory.Grow(1) == -1 {
			return nil, mem.ErrOutOfBackingStorage
		}
		m.next = btHeaderSize
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}
	hdr := make([]byte, btHeaderSize)
	memory.Read(0, hdr)
	if string(hdr[:3]) != btMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrIncompatibleLayout, hdr[:3])
	}
	if hdr[3] != btVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrIncompatibleLayout, hdr[3], btVersion)
	}
	if k, v := buf.U32LE(hdr[4:]), buf.U32LE(hdr[8:]); k != maxKey || v != maxVal {
		return nil, fmt.Errorf("%w: stored bounds (%d, %d) do not match codecs (%d, %d)",
			ErrIncompatibleLayout, k, v, maxKey, maxVal)
	}
	m.root = buf.U64LE(hdr[12:])
	m.length = buf.U64LE(hdr[20:])
	m.freeHead = buf.U64LE(hdr[28:])
	m.next = buf.U64LE(hdr[36:])
	return m, nil
}

func (m *BTreeMap[K, V]) writeHeader() error {
	hdr := make([]byte, btHeaderSize)
	copy(hdr, btMagic)
	hdr[3] = btVersion
	buf.PutU32LE(hdr[4:], m.maxKey)
	buf.PutU32LE(hdr[8:], m.maxVal)
	buf.PutU64LE(hdr[12:], m.root)
	buf.PutU64LE(hdr[20:], m.length)
	buf.PutU64LE(hdr[28:], m.freeHead)
	buf.PutU64LE(hdr[36:], m.next)
	m.memory.Write(0, hdr)
	return nil
}

// loadHeader refreshes the mutable header fields from the memory. Another
// handle opened over the same memory may have mutated the map since this one
// last touched it, so every operation starts from the persisted state rather
// than the fields left behind by the previous call.
func (m *BTreeMap[K, V]) loadHeader() {
	hdr := make([]byte, 32)
	m.memory.Read(12, hdr)
	m.root = buf.U64LE(hdr)
	m.length = buf.U64LE(hdr[8:])
	m.freeHead = buf.U64LE(hdr[16:])
	m.next = buf.U64LE(hdr[24:])
}

// Len returns the number of entries.
func (m *BTreeMap[K, V]) Len() uint64 {
	m.loadHeader()
	return m.length
}

// ──────────────────────────────────────────────
// Node allocation
// ──────────────────────────────────────────────

// ensure grows the memory until size bytes are addressable.
func (m *BTreeMap[K, V]) ensure(size uint64) error {
	need := (size + mem.PageSize - 1) / mem.PageSize
	have := m.memory.Size()
	if need <= have {
		return nil
	}
	if m.memory.Grow(need-have) == -1 {
		return mem.ErrOutOfBackingStorage
	}
	return nil
}

func (m *BTreeMap[K, V]) allocNode(leaf bool) (*btNode, error) {
	var addr uint64
	if m.freeHead != 0 {
		addr = m.freeHead
		next := make([]byte, 8)
		m.memory.Read(addr, next)
		m.freeHead = buf.U64LE(next)
	} else {
		if err := m.ensure(m.next + m.nodeSize); err != nil {
			return nil, err
		}
		addr = m.next
		m.next += m.nodeSize
	}
	return &btNode{addr: addr, leaf: leaf}, nil
}

func (m *BTreeMap[K, V]) freeNode(addr uint64) {
	next := make([]byte, 8)
	buf.PutU64LE(next, m.freeHead)
	m.memory.Write(addr, next)
	m.freeHead = addr
}

// ──────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────

// Get returns the value stored under key, reporting whether it was present.
func (m *BTreeMap[K, V]) Get(key K) (V, bool, error) {
	var zero V
	m.loadHeader()
	kb, err := m.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	addr := m.root
	for addr != 0 {
		n, err := m.readNode(addr)
		if err != nil {
			return zero, false, err
		}
		i, found := n.search(kb)
		if found {
			v, err := m.valCodec.Decode(n.vals[i])
			return v, err == nil, err
		}
		if n.leaf {
			break
		}
		addr = n.children[i]
	}
	return zero, false, nil
}

// Contains reports whether key is present.
func (m *BTreeMap[K, V]) Contains(key K) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

func (m *BTreeMap[K, V]) encodeKey(key K) ([]byte, error) {
	kb, err := m.keyCodec.Encode(key)
	if err != nil {
		return nil, err
	}
	if uint32(len(kb)) > m.maxKey {
		return nil, fmt.Errorf("%w: key encodes to %d bytes, bound is %d", ErrValueTooLarge, len(kb), m.maxKey)
	}
	return kb, nil
}

func (m *BTreeMap[K, V]) encodeVal(val V) ([]byte, error) {
	vb, err := m.valCodec.Encode(val)
	if err != nil {
		return nil, err
	}
	if uint32(len(vb)) > m.maxVal {
		return nil, fmt.Errorf("%w: value encodes to %d bytes, bound is %d", ErrValueTooLarge, len(vb), m.maxVal)
	}
	return vb, nil
}

// ──────────────────────────────────────────────
// Insertion
// ──────────────────────────────────────────────

// Insert stores value under key, returning the previous value if the key was
// already present.
func (m *BTreeMap[K, V]) Insert(key K, value V) (V, bool, error) {
	var zero V
	m.loadHeader()
	kb, err := m.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	vb, err := m.encodeVal(value)
	if err != nil {
		return zero, false, err
	}
	if m.root == 0 {
		root, err := m.allocNode(true)
		if err != nil {
			return zero, false, err
		}
		root.keys = [][]byte{kb}
		root.vals = [][]byte{vb}
		if err := m.writeNode(root); err != nil {
			return zero, false, err
		}
		m.root = root.addr
		m.length = 1
		return zero, false, m.writeHeader()
	}
	root, err := m.readNode(m.root)
	if err != nil {
		return zero, false, err
	}
	if len(root.keys) == btMaxEntries {
		newRoot, err := m.allocNode(false)
		if err != nil {
			return zero, false, err
		}
		newRoot.children = []uint64{root.addr}
		if err := m.splitChild(newRoot, 0, root); err != nil {
			return zero, false, err
		}
		m.root = newRoot.addr
		root = newRoot
	}
	prev, replaced, err := m.insertNonFull(root, kb, vb)
	if err != nil {
		return zero, false, err
	}
	if !replaced {
		m.length++
	}
	if err := m.writeHeader(); err != nil {
		return zero, false, err
	}
	if !replaced {
		return zero, false, nil
	}
	old, err := m.valCodec.Decode(prev)
	return old, true, err
}

// splitChild splits the full child at position i of parent, promoting its
// median entry. Both halves and the parent are written back.
func (m *BTreeMap[K, V]) splitChild(parent *btNode, i int, child *btNode) error {
	right, err := m.allocNode(child.leaf)
	if err != nil {
		return err
	}
	mid := btMinEntries
	right.keys = append(right.keys, child.keys[mid+1:]...)
	right.vals = append(right.vals, child.vals[mid+1:]...)
	if !child.leaf {
		right.children = append(right.children, child.children[mid+1:]...)
		child.children = child.children[:mid+1]
	}
	parent.insertEntry(i, child.keys[mid], child.vals[mid])
	parent.insertChild(i+1, right.addr)
	child.keys = child.keys[:mid]
	child.vals = child.vals[:mid]
	if err := m.writeNode(child); err != nil {
		return err
	}
	if err := m.writeNode(right); err != nil {
		return err
	}
	return m.writeNode(parent)
}

// insertNonFull inserts into the subtree rooted at n, which must not be full.
func (m *BTreeMap[K, V]) insertNonFull(n *btNode, kb, vb []byte) ([]byte, bool, error) {
	for {
		i, found := n.search(kb)
		if found {
			prev := n.vals[i]
			n.vals[i] = vb
			return prev, true, m.writeNode(n)
		}
		if n.leaf {
			n.insertEntry(i, kb, vb)
			return nil, false, m.writeNode(n)
		}
		child, err := m.readNode(n.children[i])
		if err != nil {
			return nil, false, err
		}
		if len(child.keys) == btMaxEntries {
			if err := m.splitChild(n, i, child); err != nil {
				return nil, false, err
			}
			switch c := bytes.Compare(kb, n.keys[i]); {
			case c == 0:
				prev := n.vals[i]
				n.vals[i] = vb
				return prev, true, m.writeNode(n)
			case c > 0:
				child, err = m.readNode(n.children[i+1])
				if err != nil {
					return nil, false, err
				}
			default:
				child, err = m.readNode(n.children[i])
				if err != nil {
					return nil, false, err
				}
			}
		}
		n = child
	}
}

// ──────────────────────────────────────────────
// Removal
// ──────────────────────────────────────────────

// Remove deletes key, returning the value it held if it was present.
func (m *BTreeMap[K, V]) Remove(key K) (V, bool, error) {
	var zero V
	m.loadHeader()
	kb, err := m.encodeKey(key)
	if err != nil {
		return zero, false, err
	}
	if m.root == 0 {
		return zero, false, nil
	}
	root, err := m.readNode(m.root)
	if err != nil {
		return zero, false, err
	}
	prev, removed, err := m.removeFrom(root, kb)
	if err != nil {
		return zero, false, err
	}
	// An internal root can end up empty after a child merge; collapse it.
	if len(root.keys) == 0 {
		m.freeNode(root.addr)
		if root.leaf {
			m.root = 0
		} else {
			m.root = root.children[0]
		}
	}
	if removed {
		m.length--
	}
	if err := m.writeHeader(); err != nil {
		return zero, false, err
	}
	if !removed {
		return zero, false, nil
	}
	old, err := m.valCodec.Decode(prev)
	return old, true, err
}

// removeFrom deletes kb from the subtree rooted at n, keeping every node it
// descends into above the minimum occupancy first.
func (m *BTreeMap[K, V]) removeFrom(n *btNode, kb []byte) ([]byte, bool, error) {
	i, found := n.search(kb)
	if found {
		if n.leaf {
			prev := n.vals[i]
			n.removeEntry(i)
			return prev, true, m.writeNode(n)
		}
		return m.removeInternal(n, i)
	}
	if n.leaf {
		return nil, false, nil
	}
	child, err := m.fixChild(n, i)
	if err != nil {
		return nil, false, err
	}
	return m.removeFrom(child, kb)
}

// removeInternal deletes the entry at position i of the internal node n by
// replacing it with its predecessor or successor, or by merging the
// neighboring children when both hold only the minimum.
func (m *BTreeMap[K, V]) removeInternal(n *btNode, i int) ([]byte, bool, error) {
	prev := n.vals[i]
	left, err := m.readNode(n.children[i])
	if err != nil {
		return nil, false, err
	}
	if len(left.keys) > btMinEntries {
		pk, pv, err := m.takeMax(left)
		if err != nil {
			return nil, false, err
		}
		n.keys[i], n.vals[i] = pk, pv
		return prev, true, m.writeNode(n)
	}
	right, err := m.readNode(n.children[i+1])
	if err != nil {
		return nil, false, err
	}
	if len(right.keys) > btMinEntries {
		sk, sv, err := m.takeMin(right)
		if err != nil {
			return nil, false, err
		}
		n.keys[i], n.vals[i] = sk, sv
		return prev, true, m.writeNode(n)
	}
	merged, err := m.mergeChildren(n, i, left, right)
	if err != nil {
		return nil, false, err
	}
	return m.removeFrom(merged, merged.keys[btMinEntries])
}

// takeMax removes and returns the largest entry of the subtree rooted at n.
func (m *BTreeMap[K, V]) takeMax(n *btNode) ([]byte, []byte, error) {
	for !n.leaf {
		child, err := m.fixChild(n, len(n.children)-1)
		if err != nil {
			return nil, nil, err
		}
		n = child
	}
	last := len(n.keys) - 1
	k, v := n.keys[last], n.vals[last]
	n.removeEntry(last)
	return k, v, m.writeNode(n)
}

// takeMin removes and returns the smallest entry of the subtree rooted at n.
func (m *BTreeMap[K, V]) takeMin(n *btNode) ([]byte, []byte, error) {
	for !n.leaf {
		child, err := m.fixChild(n, 0)
		if err != nil {
			return nil, nil, err
		}
		n = child
	}
	k, v := n.keys[0], n.vals[0]
	n.removeEntry(0)
	return k, v, m.writeNode(n)
}

// fixChild loads the child at position i and, if it holds only the minimum
// number of entries, borrows from a sibling or merges so the descent can
// delete from it without underflow.
func (m *BTreeMap[K, V]) fixChild(n *btNode, i int) (*btNode, error) {
	child, err := m.readNode(n.children[i])
	if err != nil {
		return nil, err
	}
	if len(child.keys) > btMinEntries {
		return child, nil
	}
	if i > 0 {
		left, err := m.readNode(n.children[i-1])
		if err != nil {
			return nil, err
		}
		if len(left.keys) > btMinEntries {
			// Rotate right through the separator.
			child.insertEntry(0, n.keys[i-1], n.vals[i-1])
			last := len(left.keys) - 1
			n.keys[i-1], n.vals[i-1] = left.keys[last], left.vals[last]
			left.removeEntry(last)
			if !child.leaf {
				child.insertChild(0, left.children[len(left.children)-1])
				left.removeChild(len(left.children) - 1)
			}
			if err := m.writeNode(left); err != nil {
				return nil, err
			}
			if err := m.writeNode(child); err != nil {
				return nil, err
			}
			return child, m.writeNode(n)
		}
	}
	if i < len(n.children)-1 {
		right, err := m.readNode(n.children[i+1])
		if err != nil {
			return nil, err
		}
		if len(right.keys) > btMinEntries {
			// Rotate left through the separator.
			child.insertEntry(len(child.keys), n.keys[i], n.vals[i])
			n.keys[i], n.vals[i] = right.keys[0], right.vals[0]
			right.removeEntry(0)
			if !child.leaf {
				child.children = append(child.children, right.children[0])
				right.removeChild(0)
			}
			if err := m.writeNode(right); err != nil {
				return nil, err
			}
			if err := m.writeNode(child); err != nil {
				return nil, err
			}
			return child, m.writeNode(n)
		}
		return m.mergeChildren(n, i, child, right)
	}
	left, err := m.readNode(n.children[i-1])
	if err != nil {
		return nil, err
	}
	return m.mergeChildren(n, i-1, left, child)
}

// mergeChildren folds the separator at position i and the right child into
// the left child, freeing the right child's node.
func (m *BTreeMap[K, V]) mergeChildren(n *btNode, i int, left, right *btNode) (*btNode, error) {
	left.keys = append(left.keys, n.keys[i])
	left.vals = append(left.vals, n.vals[i])
	left.keys = append(left.keys, right.keys...)
	left.vals = append(left.vals, right.vals...)
	if !left.leaf {
		left.children = append(left.children, right.children...)
	}
	n.removeEntry(i)
	n.removeChild(i + 1)
	m.freeNode(right.addr)
	if err := m.writeNode(left); err != nil {
		return nil, err
	}
	return left, m.writeNode(n)
}

// ──────────────────────────────────────────────
// Clearing
// ──────────────────────────────────────────────

// Clear removes every entry. Node space is released to the allocator, not to
// the underlying memory.
func (m *BTreeMap[K, V]) Clear() error {
	m.root = 0
	m.length = 0
	m.freeHead = 0
	m.next = btHeaderSize
	return m.writeHeader()
}
