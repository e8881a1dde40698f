// Package address implements pstore's 64-bit store address: an opaque byte
// position in the logical, append-only store file.
//
// Addresses are stable across runs: two opens of the same database file
// resolve the same Address to the same logical byte position. They are
// never computed from in-process pointers.
//
// Raw 64-bit arithmetic (Add, Diff, Compare) needs no configuration — an
// Address is just a byte offset into one flat logical file. Splitting an
// Address into its segment number and in-segment offset, however, depends
// on the database's configured segment size (spec §6 allows segment_size to
// be configured per deployment, and spec §8 scenario 3 configures a 16-byte
// segment_size purely for testing) — that decomposition lives in Codec,
// not as package-level constants, so two Storage instances with different
// segment sizes never share decomposition logic by accident.
package address

import (
	"fmt"

	stderrors "github.com/orizon-lang/pstore/internal/errors"
)

// Address is a 64-bit byte position in the logical store file.
//
// The zero Address is reserved as Null: byte offset 0 of segment 0 always
// lies within the file header (spec §6), so no caller ever holds a valid
// data address equal to Null — there is no ambiguity between "no address"
// and "the very first byte of the file".
type Address uint64

// SegmentType is the type of a decoded segment number.
type SegmentType = uint64

// Null is the reserved "no address" sentinel.
const Null Address = 0

// IsNull reports whether a is the reserved null sentinel.
func (a Address) IsNull() bool { return a == Null }

// FromRaw constructs an Address from an already-combined 64-bit value. It
// performs no validation: the caller is asserting that the value was
// produced by this package (e.g. read back from the on-disk footer).
func FromRaw(raw uint64) Address { return Address(raw) }

// Raw returns the address as a raw 64-bit little-endian-on-disk value.
func (a Address) Raw() uint64 { return uint64(a) }

// Add returns the address size bytes past a. Overflow — wrapping past the
// maximum representable address — is a fatal programmer error (spec §4.A):
// the store's size is bounded well below 2^64 bytes in any real deployment,
// so an overflowing request means the caller computed a bogus size.
func (a Address) Add(size uint64) Address {
	sum := uint64(a) + size
	if sum < uint64(a) {
		stderrors.InvariantOverflow("ADDRESS_ADD_OVERFLOW",
			fmt.Sprintf("address %#x + %d overflows 64 bits", uint64(a), size),
			map[string]interface{}{"address": uint64(a), "size": size})
	}

	return Address(sum)
}

// Diff returns the byte distance from b to a (a - b). Both addresses must
// belong to the same store; Diff does not itself validate that, since
// Address carries no store identity — callers within the same Database are
// expected to only diff addresses they obtained from it.
func (a Address) Diff(b Address) int64 {
	return int64(uint64(a)) - int64(uint64(b))
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b, ordering addresses by raw byte position (equivalently, by segment then
// offset, for any fixed Codec).
func (a Address) Compare(b Address) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (a Address) String() string {
	if a.IsNull() {
		return "addr(null)"
	}

	return fmt.Sprintf("addr(%#x)", uint64(a))
}

// Codec decomposes Addresses into (segment, offset) pairs for a particular
// segment size, and constructs Addresses from such pairs. Every Storage
// owns exactly one Codec, built from its region.Sizes.SegmentSize.
type Codec struct {
	segmentSize       uint64
	segmentNumberBits uint
}

// NewCodec builds a Codec for the given segment size, which must be a
// power of two (the caller — region.Sizes.Validate — is expected to have
// already checked this; NewCodec re-asserts it as an invariant since a
// non-power-of-two segment size would make Segment/Offset ill-defined).
func NewCodec(segmentSize uint64) Codec {
	if segmentSize == 0 || segmentSize&(segmentSize-1) != 0 {
		stderrors.InvariantBounds("ADDRESS_CODEC_SEGMENT_SIZE",
			fmt.Sprintf("segment size %d is not a power of two", segmentSize),
			map[string]interface{}{"segment_size": segmentSize})
	}

	bits := uint(0)
	for (uint64(1) << bits) < segmentSize {
		bits++
	}

	return Codec{segmentSize: segmentSize, segmentNumberBits: 64 - bits}
}

// SegmentSize returns the segment size this Codec was built for.
func (c Codec) SegmentSize() uint64 { return c.segmentSize }

func (c Codec) offsetBits() uint { return 64 - c.segmentNumberBits }

// New constructs an Address from a segment number and an in-segment
// offset. It panics (an invariant violation, not a recoverable error) if
// offset exceeds the segment size or segment exceeds the addressable
// segment-number range — both are programmer errors, since a well-formed
// Storage never hands out such values.
func (c Codec) New(segment SegmentType, offset uint64) Address {
	if offset >= c.segmentSize {
		stderrors.InvariantBounds("ADDRESS_OFFSET_RANGE",
			fmt.Sprintf("offset %d exceeds segment size %d", offset, c.segmentSize),
			map[string]interface{}{"offset": offset, "segment_size": c.segmentSize})
	}

	if c.segmentNumberBits < 64 && segment >= uint64(1)<<c.segmentNumberBits {
		stderrors.InvariantBounds("ADDRESS_SEGMENT_RANGE",
			fmt.Sprintf("segment %d exceeds %d-bit segment number range", segment, c.segmentNumberBits),
			map[string]interface{}{"segment": segment})
	}

	return Address(segment<<c.offsetBits() | offset)
}

// Segment returns a's high-bits segment number under this Codec.
func (c Codec) Segment(a Address) SegmentType { return uint64(a) >> c.offsetBits() }

// Offset returns a's low-bits in-segment byte offset under this Codec.
func (c Codec) Offset(a Address) uint64 { return uint64(a) & (c.segmentSize - 1) }
