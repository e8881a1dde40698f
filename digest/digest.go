// Package digest computes the content digests SPEC_FULL.md §3 uses as the
// key of the digest and write indices: a 20-byte blake2b-256 hash
// (truncated) over a fragment's raw bytes.
//
// The teacher's packagemanager content-addressing code (lockfile.go,
// signature.go) hashes package blobs the same way — sum := sha256.Sum256(
// blob.Data) — before embedding the hex digest in a lockfile entry; this
// package follows that same "hash the whole blob once, carry the raw bytes
// as the identity" shape, but with blake2b per SPEC_FULL.md §3 and without
// the package-manager-specific lockfile/signing machinery around it, which
// has no attachment point in pstore's domain.
package digest

import "golang.org/x/crypto/blake2b"

// Size is the digest length in bytes.
const Size = 20

// Digest is a content digest: the key of the digest index (digest →
// fragment Address) and the write index (digest → Extent).
type Digest [Size]byte

// Sum computes data's digest: a 256-bit blake2b hash, truncated to the
// first 20 bytes.
func Sum(data []byte) Digest {
	full := blake2b.Sum256(data)

	var d Digest

	copy(d[:], full[:Size])

	return d
}

func (d Digest) String() string {
	const hexDigits = "0123456789abcdef"

	buf := make([]byte, Size*2)

	for i, b := range d {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0xf]
	}

	return string(buf)
}

// IsZero reports whether d is the zero digest (never a real content hash
// in practice, but useful as a sentinel for "no digest yet").
func (d Digest) IsZero() bool {
	return d == Digest{}
}
