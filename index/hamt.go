// Package index implements the copy-on-write hash-array-mapped trie
// spec.md §4.F describes: branch nodes fan out 2^B ways on B bits of the
// key's hash at a time, leaves hold one key (or key/value) or a linear
// collision chain, and a node reference is tagged as either an in-store
// Address or, while a transaction is open, an in-heap pointer — modeled
// here as the small tagged struct SPEC_FULL.md §9 calls for, rather than
// an interface, to keep the in-store/in-heap distinction a nil check.
package index

import (
	"encoding/binary"
	"math/bits"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/internal/scratcharena"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"
)

// B is the number of hash bits consumed per trie level; 2^B = 64-way
// fan-out (spec.md §4.F).
const B = 6

const fanout = 1 << B

// maxDepth is the trie depth at which Insert stops splitting leaves. A
// leaf at depth maxDepth has had 60 of its 64 hash bits consumed by the
// branches above it; Insert extends its entries as a linear collision
// chain instead of branching on the remaining 4 bits, and Find scans the
// chain comparing full hashes and keys.
const maxDepth = 64 / B

// Reader is the read-side capability the trie needs to resolve in-store
// node addresses: Database and Transaction both satisfy it.
type Reader interface {
	At(addr address.Address, size uint64) result.Result[[]byte]
}

// Writer is the write-side capability Flush needs: Transaction satisfies
// it directly.
type Writer interface {
	AllocRW(size, align uint64) result.Result[address.Address]
	Write(addr address.Address, data []byte) result.Result[struct{}]
}

// KeyCodec supplies hashing, equality, and a wire encoding for a trie's
// key type. Implementations must be stable across processes: Hash and
// Encode are part of the on-disk format.
type KeyCodec[K any] interface {
	Hash(k K) uint64
	Equal(a, b K) bool
	Encode(k K) []byte
	Decode(b []byte) K
}

// ValueCodec supplies a wire encoding for a map trie's value type. Set
// tries use unitCodec, whose Encode always returns an empty slice.
type ValueCodec[V any] interface {
	Encode(v V) []byte
	Decode(b []byte) V
}

type unitCodec struct{}

func (unitCodec) Encode(struct{}) []byte      { return nil }
func (unitCodec) Decode([]byte) struct{}      { return struct{}{} }

// nodeRef is a tagged trie-node reference: either an in-store Address
// (heap == nil) or an in-heap pointer to a node still being built within
// an open transaction. An empty slot is addr == address.Null && heap ==
// nil.
type nodeRef[K any, V any] struct {
	addr address.Address
	heap *node[K, V]
}

func (r nodeRef[K, V]) isHeap() bool  { return r.heap != nil }
func (r nodeRef[K, V]) isEmpty() bool { return r.heap == nil && r.addr.IsNull() }

func heapRef[K any, V any](n *node[K, V]) nodeRef[K, V] { return nodeRef[K, V]{heap: n} }

type leafEntry[K any, V any] struct {
	hash  uint64
	key   K
	value V
}

// node is the decoded (or not-yet-serialized) form of one trie node:
// either a branch (bitmap + children) or a leaf (a collision chain of one
// or more entries sharing a hash prefix).
type node[K any, V any] struct {
	isLeaf   bool
	bitmap   uint64
	children []nodeRef[K, V]
	entries  []leafEntry[K, V]
}

// Trie is a copy-on-write HAMT over keys K (and, for maps, values V).
// The zero value is not usable; construct with New or NewSet.
type Trie[K comparable, V any] struct {
	keyCodec   KeyCodec[K]
	valueCodec ValueCodec[V]
	isSet      bool
	reader     Reader
	root       nodeRef[K, V]
}

// New returns a Trie rooted at root (address.Null for an empty trie),
// reading in-store nodes through reader.
func New[K comparable, V any](reader Reader, keyCodec KeyCodec[K], valueCodec ValueCodec[V], root address.Address) *Trie[K, V] {
	return &Trie[K, V]{
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		reader:     reader,
		root:       nodeRef[K, V]{addr: root},
	}
}

// NewSet returns a Trie used as a HAMT set (spec.md §4.G's name index):
// values are the zero-size struct{} and are never encoded.
func NewSet[K comparable](reader Reader, keyCodec KeyCodec[K], root address.Address) *Trie[K, struct{}] {
	t := New[K, struct{}](reader, keyCodec, unitCodec{}, root)
	t.isSet = true

	return t
}

// RootAddress returns the trie's current root Address. It panics if the
// root is still an in-heap node — call Flush first.
func (t *Trie[K, V]) RootAddress() address.Address {
	if t.root.isHeap() {
		panic("index.Trie.RootAddress: root has unflushed heap nodes")
	}

	return t.root.addr
}

func hashChunk(hash uint64, depth int) uint64 {
	shift := depth * B
	if shift >= 64 {
		return 0
	}

	return (hash >> shift) & (fanout - 1)
}

func (t *Trie[K, V]) materialize(ref nodeRef[K, V]) (*node[K, V], *perrors.Error) {
	if ref.heap != nil {
		return ref.heap, nil
	}

	if ref.addr.IsNull() {
		return nil, nil
	}

	return t.readNode(ref.addr)
}

// readNode reads a node's on-disk envelope: a 4-byte little-endian body
// length followed by the body itself (kind byte, then branch or leaf
// payload).
func (t *Trie[K, V]) readNode(addr address.Address) (*node[K, V], *perrors.Error) {
	lenBuf := t.reader.At(addr, 4)
	if !lenBuf.IsOk() {
		return nil, lenBuf.Error()
	}

	bodyLen := uint64(binary.LittleEndian.Uint32(lenBuf.Value()))

	body := t.reader.At(addr.Add(4), bodyLen)
	if !body.IsOk() {
		return nil, body.Error()
	}

	return t.decodeNode(body.Value()), nil
}

func (t *Trie[K, V]) decodeNode(buf []byte) *node[K, V] {
	if buf[0] == 0 {
		return t.decodeBranch(buf[1:])
	}

	return t.decodeLeaf(buf[1:])
}

func (t *Trie[K, V]) decodeBranch(buf []byte) *node[K, V] {
	bitmap := binary.LittleEndian.Uint64(buf[0:8])
	count := bits.OnesCount64(bitmap)
	children := make([]nodeRef[K, V], count)

	off := 8
	for i := 0; i < count; i++ {
		children[i] = nodeRef[K, V]{addr: address.FromRaw(binary.LittleEndian.Uint64(buf[off : off+8]))}
		off += 8
	}

	return &node[K, V]{bitmap: bitmap, children: children}
}

func (t *Trie[K, V]) decodeLeaf(buf []byte) *node[K, V] {
	count, n := binary.Uvarint(buf)
	buf = buf[n:]

	entries := make([]leafEntry[K, V], count)

	for i := range entries {
		klen, n := binary.Uvarint(buf)
		buf = buf[n:]
		keyBytes := buf[:klen]
		buf = buf[klen:]
		key := t.keyCodec.Decode(keyBytes)

		var value V

		if !t.isSet {
			vlen, n := binary.Uvarint(buf)
			buf = buf[n:]
			valBytes := buf[:vlen]
			buf = buf[vlen:]
			value = t.valueCodec.Decode(valBytes)
		}

		entries[i] = leafEntry[K, V]{hash: t.keyCodec.Hash(key), key: key, value: value}
	}

	return &node[K, V]{isLeaf: true, entries: entries}
}

func (t *Trie[K, V]) encodeLeaf(entries []leafEntry[K, V]) []byte {
	var buf []byte

	countVarint := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(countVarint, uint64(len(entries)))
	buf = append(buf, 0x01) // kind = leaf
	buf = append(buf, countVarint[:n]...)

	for _, e := range entries {
		keyBytes := t.keyCodec.Encode(e.key)
		lv := make([]byte, binary.MaxVarintLen64)
		ln := binary.PutUvarint(lv, uint64(len(keyBytes)))
		buf = append(buf, lv[:ln]...)
		buf = append(buf, keyBytes...)

		if !t.isSet {
			valBytes := t.valueCodec.Encode(e.value)
			lv2 := make([]byte, binary.MaxVarintLen64)
			ln2 := binary.PutUvarint(lv2, uint64(len(valBytes)))
			buf = append(buf, lv2[:ln2]...)
			buf = append(buf, valBytes...)
		}
	}

	return buf
}

func encodeBranch(bitmap uint64, children []address.Address) []byte {
	buf := make([]byte, 1+8+8*len(children))
	buf[0] = 0x00 // kind = branch
	binary.LittleEndian.PutUint64(buf[1:9], bitmap)

	off := 9
	for _, c := range children {
		binary.LittleEndian.PutUint64(buf[off:off+8], c.Raw())
		off += 8
	}

	return buf
}

// Find walks the trie without materializing any node persistently to the
// heap (spec.md §4.F): in-store branches are read directly through reader
// at each level.
func (t *Trie[K, V]) Find(key K) result.Result[FindResult[V]] {
	hash := t.keyCodec.Hash(key)

	return t.findIn(t.root, hash, key, 0)
}

// FindResult carries Find's outcome: Found is false when the key is
// absent, in which case Value is the zero value.
type FindResult[V any] struct {
	Value V
	Found bool
}

func (t *Trie[K, V]) findIn(ref nodeRef[K, V], hash uint64, key K, depth int) result.Result[FindResult[V]] {
	if ref.isEmpty() {
		return result.Ok(FindResult[V]{})
	}

	n, err := t.materialize(ref)
	if err != nil {
		return result.Err[FindResult[V]](err)
	}

	if n.isLeaf {
		for _, e := range n.entries {
			if e.hash == hash && t.keyCodec.Equal(e.key, key) {
				return result.Ok(FindResult[V]{Value: e.value, Found: true})
			}
		}

		return result.Ok(FindResult[V]{})
	}

	chunk := hashChunk(hash, depth)
	bit := uint64(1) << chunk

	if n.bitmap&bit == 0 {
		return result.Ok(FindResult[V]{})
	}

	idx := bits.OnesCount64(n.bitmap & (bit - 1))

	return t.findIn(n.children[idx], hash, key, depth+1)
}

// InsertResult carries Insert's outcome.
type InsertResult struct {
	// Inserted is true iff the key was not already present.
	Inserted bool
}

// Insert adds key/value to the trie, path-copying ancestors (spec.md
// §4.F). For a set trie (V == struct{}), a key that already exists
// returns Inserted == false and performs no allocation (spec.md §8
// scenario 2 / invariant 5). For a map trie, an existing key has its
// value replaced and also reports Inserted == false, since the key
// itself was not new.
func (t *Trie[K, V]) Insert(key K, value V) result.Result[InsertResult] {
	hash := t.keyCodec.Hash(key)

	newRoot, inserted, err := t.insertInto(t.root, leafEntry[K, V]{hash: hash, key: key, value: value}, 0)
	if err != nil {
		return result.Err[InsertResult](err)
	}

	t.root = newRoot

	return result.Ok(InsertResult{Inserted: inserted})
}

func (t *Trie[K, V]) insertInto(ref nodeRef[K, V], entry leafEntry[K, V], depth int) (nodeRef[K, V], bool, *perrors.Error) {
	if ref.isEmpty() {
		return heapRef(&node[K, V]{isLeaf: true, entries: []leafEntry[K, V]{entry}}), true, nil
	}

	n, err := t.materialize(ref)
	if err != nil {
		return nodeRef[K, V]{}, false, err
	}

	if n.isLeaf {
		for i, e := range n.entries {
			if e.hash == entry.hash && t.keyCodec.Equal(e.key, entry.key) {
				if t.isSet {
					return ref, false, nil
				}

				replaced := append([]leafEntry[K, V](nil), n.entries...)
				replaced[i] = entry

				return heapRef(&node[K, V]{isLeaf: true, entries: replaced}), false, nil
			}
		}

		if depth >= maxDepth {
			chained := append(append([]leafEntry[K, V](nil), n.entries...), entry)

			return heapRef(&node[K, V]{isLeaf: true, entries: chained}), true, nil
		}

		branch := nodeRef[K, V]{heap: &node[K, V]{}}

		for _, e := range n.entries {
			branch, _, err = t.insertInto(branch, e, depth)
			if err != nil {
				return nodeRef[K, V]{}, false, err
			}
		}

		branch, _, err = t.insertInto(branch, entry, depth)
		if err != nil {
			return nodeRef[K, V]{}, false, err
		}

		return branch, true, nil
	}

	chunk := hashChunk(entry.hash, depth)
	bit := uint64(1) << chunk
	idx := bits.OnesCount64(n.bitmap & (bit - 1))

	if n.bitmap&bit == 0 {
		children := make([]nodeRef[K, V], len(n.children)+1)
		copy(children, n.children[:idx])
		children[idx] = heapRef(&node[K, V]{isLeaf: true, entries: []leafEntry[K, V]{entry}})
		copy(children[idx+1:], n.children[idx:])

		return heapRef(&node[K, V]{bitmap: n.bitmap | bit, children: children}), true, nil
	}

	newChild, inserted, err := t.insertInto(n.children[idx], entry, depth+1)
	if err != nil {
		return nodeRef[K, V]{}, false, err
	}

	if t.isSet && !inserted {
		// The key was already present and nothing below changed: keep ref
		// (and its in-store address, if any) rather than path-copying.
		return ref, false, nil
	}

	children := append([]nodeRef[K, V](nil), n.children...)
	children[idx] = newChild

	return heapRef(&node[K, V]{bitmap: n.bitmap, children: children}), inserted, nil
}

// Flush serializes every in-heap node reachable from the root, leaves
// first then branches in post-order, replacing each in-heap pointer with
// its freshly written Address (spec.md §4.F). It returns the root
// Address; callers record it in the committing transaction's index slot.
// Flush serializes every heap-resident node reachable from the root,
// post-order, and writes each through w. It stages each node's envelope
// bytes in one reusable scratcharena.Arena rather than a fresh heap
// allocation per node, since a single Flush call's worth of envelopes are
// all written out (never retained) before the next one is built.
func (t *Trie[K, V]) Flush(w Writer) result.Result[address.Address] {
	arena := scratcharena.New(4096)

	addr, err := t.flushRef(w, t.root, arena)
	if err != nil {
		return result.Err[address.Address](err)
	}

	t.root = nodeRef[K, V]{addr: addr}

	return result.Ok(addr)
}

func (t *Trie[K, V]) flushRef(w Writer, ref nodeRef[K, V], arena *scratcharena.Arena) (address.Address, *perrors.Error) {
	if !ref.isHeap() {
		return ref.addr, nil
	}

	n := ref.heap

	var body []byte

	if n.isLeaf {
		body = t.encodeLeaf(n.entries)
	} else {
		childAddrs := make([]address.Address, len(n.children))

		for i, c := range n.children {
			addr, err := t.flushRef(w, c, arena)
			if err != nil {
				return address.Null, err
			}

			childAddrs[i] = addr
		}

		body = encodeBranch(n.bitmap, childAddrs)
	}

	envelope := arena.Alloc(4 + len(body))
	binary.LittleEndian.PutUint32(envelope[0:4], uint32(len(body)))
	copy(envelope[4:], body)

	addr := w.AllocRW(uint64(len(envelope)), 8)
	if !addr.IsOk() {
		return address.Null, addr.Error()
	}

	if r := w.Write(addr.Value(), envelope); !r.IsOk() {
		return address.Null, r.Error()
	}

	return addr.Value(), nil
}
