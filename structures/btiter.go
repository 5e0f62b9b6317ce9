package structures

import "bytes"

type btFrame struct {
	n   *btNode
	idx int
}

// MapIter walks a BTreeMap in ascending key order. The map must not be
// modified while an iterator is live.
type MapIter[K, V any] struct {
	m     *BTreeMap[K, V]
	stack []btFrame
	end   []byte // exclusive upper bound, nil for none
	key   K
	value V
	err   error
}

// Iter returns an iterator over every entry in ascending key order.
func (m *BTreeMap[K, V]) Iter() *MapIter[K, V] {
	m.loadHeader()
	it := &MapIter[K, V]{m: m}
	it.err = it.pushLeft(m.root)
	return it
}

// Range returns an iterator over entries with from <= key < to, compared by
// encoded byte order.
func (m *BTreeMap[K, V]) Range(from, to K) (*MapIter[K, V], error) {
	fb, err := m.encodeKey(from)
	if err != nil {
		return nil, err
	}
	tb, err := m.encodeKey(to)
	if err != nil {
		return nil, err
	}
	return m.iterBytes(fb, tb), nil
}

// iterBytes returns an iterator over entries with start <= key < end. A nil
// start begins at the smallest key; a nil end runs to the largest.
func (m *BTreeMap[K, V]) iterBytes(start, end []byte) *MapIter[K, V] {
	m.loadHeader()
	it := &MapIter[K, V]{m: m, end: end}
	if start == nil {
		it.err = it.pushLeft(m.root)
	} else {
		it.err = it.seekGE(start)
	}
	return it
}

// pushLeft descends to the leftmost entry of the subtree at addr.
func (it *MapIter[K, V]) pushLeft(addr uint64) error {
	for addr != 0 {
		n, err := it.m.readNode(addr)
		if err != nil {
			return err
		}
		it.stack = append(it.stack, btFrame{n: n})
		if n.leaf {
			return nil
		}
		addr = n.children[0]
	}
	return nil
}

// seekGE positions the iterator before the smallest key >= kb.
func (it *MapIter[K, V]) seekGE(kb []byte) error {
	addr := it.m.root
	for addr != 0 {
		n, err := it.m.readNode(addr)
		if err != nil {
			return err
		}
		i, found := n.search(kb)
		it.stack = append(it.stack, btFrame{n: n, idx: i})
		if found || n.leaf {
			return nil
		}
		addr = n.children[i]
	}
	return nil
}

// Next advances to the next entry, reporting whether one exists. Key and
// Value return the entry; check Err when Next returns false.
func (it *MapIter[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.idx >= len(top.n.keys) {
			// A leaf with no entries left, or an internal node fully
			// consumed; pop and resume in the parent.
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		kb := top.n.keys[top.idx]
		if it.end != nil && bytes.Compare(kb, it.end) >= 0 {
			it.stack = nil
			return false
		}
		vb := top.n.vals[top.idx]
		top.idx++
		if !top.n.leaf {
			// Entries of child idx sort between this entry and the next;
			// walk them before returning to this node.
			if err := it.pushLeft(top.n.children[top.idx]); err != nil {
				it.err = err
				return false
			}
		}
		if it.key, it.err = it.m.keyCodec.Decode(kb); it.err != nil {
			return false
		}
		if it.value, it.err = it.m.valCodec.Decode(vb); it.err != nil {
			return false
		}
		return true
	}
	return false
}

// Key returns the key of the current entry.
func (it *MapIter[K, V]) Key() K { return it.key }

// Value returns the value of the current entry.
func (it *MapIter[K, V]) Value() V { return it.value }

// Err returns the first error the iterator hit, if any.
func (it *MapIter[K, V]) Err() error { return it.err }

// IterUpperBound returns an iterator positioned at the entry with the
// greatest key not exceeding bound, compared by encoded byte order, and
// continuing in ascending order from there. When no key is at or below the
// bound the iterator is exhausted.
func (m *BTreeMap[K, V]) IterUpperBound(bound K) (*MapIter[K, V], error) {
	m.loadHeader()
	bb, err := m.encodeKey(bound)
	if err != nil {
		return nil, err
	}
	var bestK []byte
	addr := m.root
	for addr != 0 {
		n, err := m.readNode(addr)
		if err != nil {
			return nil, err
		}
		i, found := n.search(bb)
		if found {
			bestK = n.keys[i]
			break
		}
		if i > 0 {
			// Largest entry below bb seen so far on this path.
			bestK = n.keys[i-1]
		}
		if n.leaf {
			break
		}
		addr = n.children[i]
	}
	if bestK == nil {
		return &MapIter[K, V]{m: m}, nil
	}
	return m.iterBytes(bestK, nil), nil
}

// prefixSuccessor returns the smallest byte string greater than every string
// beginning with p, or nil when p is all 0xff.
func prefixSuccessor(p []byte) []byte {
	s := append([]byte(nil), p...)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != 0xff {
			s[i]++
			return s[:i+1]
		}
	}
	return nil
}
