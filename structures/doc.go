// Package structures implements the typed collection structures that live
// inside a mem.Memory: BTreeMap, Cell, Log, Vec, Multimap, Unbounded
// (chunked map) and RingBuffer.
//
// Every structure is generic over the Memory handle it was constructed with
// and one or more storable.Codec values describing how entries are encoded.
// Structures persist a small self-describing header (magic, version, shape)
// at offset 0 of their memory; reopening a memory whose header does not
// match the expected shape fails with ErrIncompatibleLayout rather than
// guessing at foreign bytes.
//
// None of the structures are safe for concurrent use. Growth failures of
// the backing memory surface as mem.ErrOutOfBackingStorage; bound
// violations as ErrValueTooLarge. No structure retries or recovers on its
// own — retry and abort policy belongs to the caller.
package structures
