package structures

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/stablekit/internal/buf"
	"github.com/joshuapare/stablekit/mem"
	"github.com/joshuapare/stablekit/storable"
)

// Unbounded maps keys to values of arbitrary size. Values are split into
// chunks of a declared size and stored in a BTreeMap under the key's encoding
// behind a big-endian length prefix, followed by a big-endian chunk index, so
// a value reads back as the ordered concatenation of its key's chunks.
type Unbounded[K, V any] struct {
	tree      *BTreeMap[[]byte, []byte]
	keyCodec  storable.Codec[K]
	valCodec  storable.Codec[V]
	maxKey    uint32
	chunkSize uint32
}

// NewUnbounded opens the map stored in memory. The key codec must carry a
// fixed bound; the value codec may be unbounded. A value may span at most
// 65536 chunks of chunkSize bytes.
func NewUnbounded[K, V any](memory mem.Memory, keyCodec storable.Codec[K], valCodec storable.Codec[V], chunkSize uint32) (*Unbounded[K, V], error) {
	if keyCodec.Bound().IsUnbounded() {
		return nil, fmt.Errorf("%w: unbounded map requires a fixed-size key codec", ErrUnboundedValue)
	}
	if chunkSize == 0 {
		return nil, fmt.Errorf("structures: chunk size must be positive")
	}
	maxKey := keyCodec.Bound().Max()
	tree, err := NewBTreeMap(memory, storable.BoundedBytes(2+maxKey+2), storable.BoundedBytes(chunkSize))
	if err != nil {
		return nil, err
	}
	return &Unbounded[K, V]{
		tree:      tree,
		keyCodec:  keyCodec,
		valCodec:  valCodec,
		maxKey:    maxKey,
		chunkSize: chunkSize,
	}, nil
}

// keyPrefix encodes k as a scan prefix shared by all of its chunks.
func (u *Unbounded[K, V]) keyPrefix(k K) ([]byte, error) {
	kb, err := u.keyCodec.Encode(k)
	if err != nil {
		return nil, err
	}
	if uint32(len(kb)) > u.maxKey {
		return nil, fmt.Errorf("%w: key encodes to %d bytes, bound is %d", ErrValueTooLarge, len(kb), u.maxKey)
	}
	out := make([]byte, 2+len(kb))
	buf.PutU16BE(out, uint16(len(kb)))
	copy(out[2:], kb)
	return out, nil
}

func chunkKey(prefix []byte, idx uint16) []byte {
	ck := make([]byte, len(prefix)+2)
	copy(ck, prefix)
	buf.PutU16BE(ck[len(prefix):], idx)
	return ck
}

// readChunks returns the raw chunks stored under prefix, in index order.
func (u *Unbounded[K, V]) readChunks(prefix []byte) ([][]byte, error) {
	it := u.tree.iterBytes(prefix, prefixSuccessor(prefix))
	var chunks [][]byte
	for it.Next() {
		chunks = append(chunks, it.Value())
	}
	return chunks, it.Err()
}

// Get returns the value stored under k, reporting whether it is present.
func (u *Unbounded[K, V]) Get(k K) (V, bool, error) {
	var zero V
	prefix, err := u.keyPrefix(k)
	if err != nil {
		return zero, false, err
	}
	chunks, err := u.readChunks(prefix)
	if err != nil || len(chunks) == 0 {
		return zero, false, err
	}
	v, err := u.decodeChunks(chunks)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (u *Unbounded[K, V]) decodeChunks(chunks [][]byte) (V, error) {
	var raw []byte
	for _, c := range chunks {
		raw = append(raw, c...)
	}
	return u.valCodec.Decode(raw)
}

func (u *Unbounded[K, V]) splitChunks(vb []byte) ([][]byte, error) {
	if uint64(len(vb)) > uint64(u.chunkSize)*65536 {
		return nil, fmt.Errorf("%w: value of %d bytes exceeds %d chunks of %d bytes",
			ErrValueTooLarge, len(vb), 65536, u.chunkSize)
	}
	var chunks [][]byte
	for len(vb) > 0 {
		n := int(u.chunkSize)
		if n > len(vb) {
			n = len(vb)
		}
		chunks = append(chunks, vb[:n])
		vb = vb[n:]
	}
	if len(chunks) == 0 {
		// A zero-length value still needs a chunk so the key is present.
		chunks = [][]byte{{}}
	}
	return chunks, nil
}

// Insert stores value under k, returning the previous value if the key was
// already present. A failure partway through a multi-chunk write restores the
// previous chunks before returning.
func (u *Unbounded[K, V]) Insert(k K, value V) (V, bool, error) {
	var zero V
	prefix, err := u.keyPrefix(k)
	if err != nil {
		return zero, false, err
	}
	vb, err := u.valCodec.Encode(value)
	if err != nil {
		return zero, false, err
	}
	chunks, err := u.splitChunks(vb)
	if err != nil {
		return zero, false, err
	}
	old, err := u.readChunks(prefix)
	if err != nil {
		return zero, false, err
	}
	for i, c := range chunks {
		if _, _, err := u.tree.Insert(chunkKey(prefix, uint16(i)), c); err != nil {
			u.rollback(prefix, old, i)
			return zero, false, err
		}
	}
	for i := len(chunks); i < len(old); i++ {
		if _, _, err := u.tree.Remove(chunkKey(prefix, uint16(i))); err != nil {
			return zero, false, err
		}
	}
	if len(old) == 0 {
		return zero, false, nil
	}
	prev, err := u.decodeChunks(old)
	if err != nil {
		return zero, false, err
	}
	return prev, true, nil
}

// rollback restores the first written chunks to their prior contents after a
// failed insert. written is the count of new chunks already in the tree.
func (u *Unbounded[K, V]) rollback(prefix []byte, old [][]byte, written int) {
	for i := 0; i < written; i++ {
		ck := chunkKey(prefix, uint16(i))
		if i < len(old) {
			u.tree.Insert(ck, old[i]) //nolint:errcheck // best effort, original error is reported
		} else {
			u.tree.Remove(ck) //nolint:errcheck // best effort, original error is reported
		}
	}
}

// Remove deletes the value under k, returning it if it was present.
func (u *Unbounded[K, V]) Remove(k K) (V, bool, error) {
	var zero V
	prefix, err := u.keyPrefix(k)
	if err != nil {
		return zero, false, err
	}
	old, err := u.readChunks(prefix)
	if err != nil || len(old) == 0 {
		return zero, false, err
	}
	for i := range old {
		if _, _, err := u.tree.Remove(chunkKey(prefix, uint16(i))); err != nil {
			return zero, false, err
		}
	}
	prev, err := u.decodeChunks(old)
	if err != nil {
		return zero, false, err
	}
	return prev, true, nil
}

// Len returns the number of keys. It walks the chunk index, counting first
// chunks.
func (u *Unbounded[K, V]) Len() (uint64, error) {
	it := u.tree.iterBytes(nil, nil)
	var n uint64
	for it.Next() {
		ck := it.Key()
		if buf.U16BE(ck[len(ck)-2:]) == 0 {
			n++
		}
	}
	return n, it.Err()
}

// UnboundedIter walks the map's entries in the byte order of their encoded
// keys, reassembling each value from its chunks.
type UnboundedIter[K, V any] struct {
	u     *Unbounded[K, V]
	inner *MapIter[[]byte, []byte]
	key   K
	value V
	err   error
	// chunk carried over after the inner iterator crossed into the next key
	pendingKey   []byte
	pendingChunk []byte
	pending      bool
}

// Iter returns an iterator over every entry.
func (u *Unbounded[K, V]) Iter() *UnboundedIter[K, V] {
	return &UnboundedIter[K, V]{u: u, inner: u.tree.iterBytes(nil, nil)}
}

// Next advances to the next entry, reporting whether one exists.
func (it *UnboundedIter[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	var prefix []byte
	var chunks [][]byte
	if it.pending {
		prefix = it.pendingKey
		chunks = append(chunks, it.pendingChunk)
		it.pending = false
	}
	for it.inner.Next() {
		ck := it.inner.Key()
		p := ck[:len(ck)-2]
		if prefix == nil {
			prefix = append([]byte(nil), p...)
		} else if !bytes.Equal(prefix, p) {
			it.pendingKey = append([]byte(nil), p...)
			it.pendingChunk = it.inner.Value()
			it.pending = true
			break
		}
		chunks = append(chunks, it.inner.Value())
	}
	if it.inner.Err() != nil {
		it.err = it.inner.Err()
		return false
	}
	if prefix == nil {
		return false
	}
	n := int(buf.U16BE(prefix))
	kb, ok := buf.Slice(prefix, 2, n)
	if !ok {
		it.err = fmt.Errorf("%w: chunk key of %d bytes claims key length %d", ErrIncompatibleLayout, len(prefix), n)
		return false
	}
	if it.key, it.err = it.u.keyCodec.Decode(kb); it.err != nil {
		return false
	}
	it.value, it.err = it.u.decodeChunks(chunks)
	return it.err == nil
}

// Key returns the key of the current entry.
func (it *UnboundedIter[K, V]) Key() K { return it.key }

// Value returns the value of the current entry.
func (it *UnboundedIter[K, V]) Value() V { return it.value }

// Err returns the first error the iterator hit, if any.
func (it *UnboundedIter[K, V]) Err() error { return it.err }
