package index

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
)

// StringKeyCodec hashes and encodes Go strings directly; it is the codec
// used for the few trie instances keyed on opaque byte identifiers rather
// than IndirectString handles (mainly tests and simple name lookups).
type StringKeyCodec struct{}

func (StringKeyCodec) Hash(k string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k))

	return h.Sum64()
}

func (StringKeyCodec) Equal(a, b string) bool { return a == b }
func (StringKeyCodec) Encode(k string) []byte { return []byte(k) }
func (StringKeyCodec) Decode(b []byte) string { return string(b) }

// Uint64KeyCodec is the codec for Ticket keys (SPEC_FULL.md §3): the key
// itself, being already a well-distributed opaque identifier minted by an
// external caller, is its own hash.
type Uint64KeyCodec struct{}

func (Uint64KeyCodec) Hash(k uint64) uint64    { return k }
func (Uint64KeyCodec) Equal(a, b uint64) bool  { return a == b }
func (Uint64KeyCodec) Encode(k uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, k)

	return buf
}
func (Uint64KeyCodec) Decode(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// BytesValueCodec is the trivial ValueCodec for []byte values.
type BytesValueCodec struct{}

func (BytesValueCodec) Encode(v []byte) []byte { return v }
func (BytesValueCodec) Decode(b []byte) []byte { return append([]byte(nil), b...) }

// DigestKeyCodec hashes and encodes a fixed-size N-byte content digest
// (SPEC_FULL.md §3's Digest is [20]byte); the digest's own leading 8 bytes
// serve as the trie hash, since a cryptographic digest is already
// uniformly distributed.
type DigestKeyCodec[N digestArray] struct{}

type digestArray interface {
	~[20]byte
}

func (DigestKeyCodec[N]) Hash(k N) uint64 {
	b := anyDigestBytes(k)

	return binary.LittleEndian.Uint64(b[:8])
}

func (DigestKeyCodec[N]) Equal(a, b N) bool {
	return bytes.Equal(anyDigestBytes(a), anyDigestBytes(b))
}

func (DigestKeyCodec[N]) Encode(k N) []byte { return append([]byte(nil), anyDigestBytes(k)...) }

func (DigestKeyCodec[N]) Decode(b []byte) N {
	var arr [20]byte
	copy(arr[:], b)

	return N(arr)
}

func anyDigestBytes[N digestArray](k N) []byte {
	arr := [20]byte(k)

	return arr[:]
}
