package structures

import (
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Multimap maps pairs of keys to values, stored as a BTreeMap whose keys are
// the first key's encoding behind a big-endian length prefix, followed by the
// second key's encoding. Entries sharing a first key are therefore contiguous
// in the tree, which makes by-first-key iteration and removal a prefix scan.
type Multimap[K1, K2, V any] struct {
	tree     *BTreeMap[[]byte, V]
	k1Codec  storable.Codec[K1]
	k2Codec  storable.Codec[K2]
	maxFirst uint32
}

// NewMultimap opens the multimap stored in memory. All three codecs must
// carry fixed bounds.
func NewMultimap[K1, K2, V any](memory mem.Memory, k1Codec storable.Codec[K1], k2Codec storable.Codec[K2], valCodec storable.Codec[V]) (*Multimap[K1, K2, V], error) {
	if k1Codec.Bound().IsUnbounded() || k2Codec.Bound().IsUnbounded() {
		return nil, fmt.Errorf("%w: multimap requires fixed-size key codecs", ErrUnboundedValue)
	}
	maxFirst := k1Codec.Bound().Max()
	composite := storable.BoundedBytes(2 + maxFirst + k2Codec.Bound().Max())
	tree, err := NewBTreeMap(memory, composite, valCodec)
	if err != nil {
		return nil, err
	}
	return &Multimap[K1, K2, V]{
		tree:     tree,
		k1Codec:  k1Codec,
		k2Codec:  k2Codec,
		maxFirst: maxFirst,
	}, nil
}

// Len returns the number of entries.
func (m *Multimap[K1, K2, V]) Len() uint64 { return m.tree.Len() }

// Clear removes every entry.
func (m *Multimap[K1, K2, V]) Clear() error { return m.tree.Clear() }

// firstPrefix encodes k1 as a scan prefix shared by all entries under it.
func (m *Multimap[K1, K2, V]) firstPrefix(k1 K1) ([]byte, error) {
	kb, err := m.k1Codec.Encode(k1)
	if err != nil {
		return nil, err
	}
	if uint32(len(kb)) > m.maxFirst {
		return nil, fmt.Errorf("%w: first key encodes to %d bytes, bound is %d", ErrValueTooLarge, len(kb), m.maxFirst)
	}
	out := make([]byte, 2+len(kb))
	buf.PutU16BE(out, uint16(len(kb)))
	copy(out[2:], kb)
	return out, nil
}

func (m *Multimap[K1, K2, V]) compositeKey(k1 K1, k2 K2) ([]byte, error) {
	prefix, err := m.firstPrefix(k1)
	if err != nil {
		return nil, err
	}
	kb, err := m.k2Codec.Encode(k2)
	if err != nil {
		return nil, err
	}
	return append(prefix, kb...), nil
}

// Insert stores value under (k1, k2), returning the previous value if the
// pair was already present.
func (m *Multimap[K1, K2, V]) Insert(k1 K1, k2 K2, value V) (V, bool, error) {
	var zero V
	ck, err := m.compositeKey(k1, k2)
	if err != nil {
		return zero, false, err
	}
	return m.tree.Insert(ck, value)
}

// Get returns the value stored under (k1, k2), reporting whether the pair is
// present.
func (m *Multimap[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool, error) {
	var zero V
	ck, err := m.compositeKey(k1, k2)
	if err != nil {
		return zero, false, err
	}
	return m.tree.Get(ck)
}

// Remove deletes the entry under (k1, k2), returning the value it held if
// present.
func (m *Multimap[K1, K2, V]) Remove(k1 K1, k2 K2) (V, bool, error) {
	var zero V
	ck, err := m.compositeKey(k1, k2)
	if err != nil {
		return zero, false, err
	}
	return m.tree.Remove(ck)
}

// RemovePartial deletes every entry under k1, returning how many were
// removed.
func (m *Multimap[K1, K2, V]) RemovePartial(k1 K1) (uint64, error) {
	prefix, err := m.firstPrefix(k1)
	if err != nil {
		return 0, err
	}
	it := m.tree.iterBytes(prefix, prefixSuccessor(prefix))
	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	for _, ck := range keys {
		if _, _, err := m.tree.Remove(ck); err != nil {
			return 0, err
		}
	}
	return uint64(len(keys)), nil
}

// MultimapEntryIter walks every entry of a Multimap in composite-key order:
// first keys ascending, second keys ascending within each first key.
type MultimapEntryIter[K1, K2, V any] struct {
	inner   *MapIter[[]byte, V]
	k1Codec storable.Codec[K1]
	k2Codec storable.Codec[K2]
	first   K1
	second  K2
	err     error
}

// Iter returns an iterator over every entry in the multimap.
func (m *Multimap[K1, K2, V]) Iter() *MultimapEntryIter[K1, K2, V] {
	return &MultimapEntryIter[K1, K2, V]{
		inner:   m.tree.Iter(),
		k1Codec: m.k1Codec,
		k2Codec: m.k2Codec,
	}
}

// Next advances to the next entry, reporting whether one exists.
func (it *MultimapEntryIter[K1, K2, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.inner.Next() {
		it.err = it.inner.Err()
		return false
	}
	ck := it.inner.Key()
	n := int(buf.U16BE(ck))
	fb, ok := buf.Slice(ck, 2, n)
	if !ok {
		it.err = fmt.Errorf("%w: composite key of %d bytes claims first-key length %d", ErrIncompatibleLayout, len(ck), n)
		return false
	}
	if it.first, it.err = it.k1Codec.Decode(fb); it.err != nil {
		return false
	}
	sb, _ := buf.Slice(ck, 2+n, len(ck)-2-n)
	it.second, it.err = it.k2Codec.Decode(sb)
	return it.err == nil
}

// First returns the first key of the current entry.
func (it *MultimapEntryIter[K1, K2, V]) First() K1 { return it.first }

// Second returns the second key of the current entry.
func (it *MultimapEntryIter[K1, K2, V]) Second() K2 { return it.second }

// Value returns the value of the current entry.
func (it *MultimapEntryIter[K1, K2, V]) Value() V { return it.inner.Value() }

// Err returns the first error the iterator hit, if any.
func (it *MultimapEntryIter[K1, K2, V]) Err() error { return it.err }

// MultimapIter walks the entries stored under one first key, in the byte
// order of the second key's encoding.
type MultimapIter[K2, V any] struct {
	inner   *MapIter[[]byte, V]
	k2Codec storable.Codec[K2]
	key     K2
	err     error
}

// Range returns an iterator over every (k2, value) pair stored under k1.
func (m *Multimap[K1, K2, V]) Range(k1 K1) (*MultimapIter[K2, V], error) {
	prefix, err := m.firstPrefix(k1)
	if err != nil {
		return nil, err
	}
	return &MultimapIter[K2, V]{
		inner:   m.tree.iterBytes(prefix, prefixSuccessor(prefix)),
		k2Codec: m.k2Codec,
	}, nil
}

// Next advances to the next entry, reporting whether one exists.
func (it *MultimapIter[K2, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.inner.Next() {
		it.err = it.inner.Err()
		return false
	}
	ck := it.inner.Key()
	n := int(buf.U16BE(ck))
	rest, ok := buf.Slice(ck, 2+n, len(ck)-2-n)
	if !ok {
		it.err = fmt.Errorf("%w: composite key of %d bytes claims first-key length %d", ErrIncompatibleLayout, len(ck), n)
		return false
	}
	it.key, it.err = it.k2Codec.Decode(rest)
	return it.err == nil
}

// Key returns the second key of the current entry.
func (it *MultimapIter[K2, V]) Key() K2 { return it.key }

// Value returns the value of the current entry.
func (it *MultimapIter[K2, V]) Value() V { return it.inner.Value() }

// Err returns the first error the iterator hit, if any.
func (it *MultimapIter[K2, V]) Err() error { return it.err }
