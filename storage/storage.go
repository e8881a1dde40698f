// Package storage implements the Segment Address Table (SAT): the
// process-local index from segment number to (mapped pointer, owning
// region), and the address-to-pointer translation and spanning-copy logic
// built on top of it (spec §4.C).
//
// spec.md describes the SAT as a fixed array of exactly 2^segment_number_bits
// entries. With the package's default 22-bit segment offset that is a
// 2^42-entry array — far beyond what any process can actually commit, even
// lazily, on real hardware. This implementation instead grows the SAT one
// entry at a time as regions are sliced into segments, preserving every
// invariant spec.md actually requires of it (append-only, entries never
// mutated once set, null beyond the current file length) without the
// physically impossible fixed allocation.
package storage

import (
	"fmt"

	"github.com/orizon-lang/pstore/address"
	stderrors "github.com/orizon-lang/pstore/internal/errors"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/result"
)

// satEntry is one Segment Address Table slot: the region that owns this
// segment's bytes and the byte offset within that region's Bytes() where
// the segment starts. A zero-value satEntry (region == nil) means "beyond
// the current file length".
type satEntry struct {
	reg          region.Region
	regionOffset uint64
}

func (e satEntry) valid() bool { return e.reg != nil }

func (e satEntry) slice(segmentSize uint64) []byte {
	return e.reg.Bytes()[e.regionOffset : e.regionOffset+segmentSize]
}

// Storage owns the SAT and the list of regions it was sliced from, and
// translates Addresses to byte slices.
type Storage struct {
	file    region.File
	factory region.Factory
	sizes   region.Sizes
	codec   address.Codec

	sat     []satEntry
	regions []region.Region

	// AlwaysSpanning forces RequestSpansRegions to always report true,
	// the PSTORE_ALWAYS_SPANNING testing switch from spec §9. Production
	// behavior is identical to the default (false).
	AlwaysSpanning bool
}

// Open constructs a Storage over file using factory to produce regions,
// slicing whatever regions factory.Init() returns into the SAT.
func Open(file region.File, factory region.Factory, sizes region.Sizes) result.Result[*Storage] {
	s := &Storage{
		file:    file,
		factory: factory,
		sizes:   sizes,
		codec:   address.NewCodec(sizes.SegmentSize),
	}

	initial := factory.Init()
	if !initial.IsOk() {
		return result.Err[*Storage](initial.Error())
	}

	s.appendRegions(initial.Value())

	return result.Ok(s)
}

// Codec returns the Address (segment, offset) codec this Storage was built
// for; Database and Transaction share it so every Address they hand out
// decomposes consistently.
func (s *Storage) Codec() address.Codec { return s.codec }

// MapBytes ensures the file and SAT cover [0, newSize). After it succeeds,
// every segment in that range has a live SAT entry (spec §4.C).
func (s *Storage) MapBytes(newSize uint64) result.Result[struct{}] {
	added := s.factory.Add(newSize)
	if !added.IsOk() {
		return result.Err[struct{}](added.Error())
	}

	s.appendRegions(added.Value())

	return result.Ok(struct{}{})
}

func (s *Storage) appendRegions(regions []region.Region) {
	segSize := s.sizes.SegmentSize

	for _, r := range regions {
		s.regions = append(s.regions, r)

		segs := r.Size() / segSize
		for k := uint64(0); k < segs; k++ {
			s.sat = append(s.sat, satEntry{reg: r, regionOffset: k * segSize})
		}
	}
}

// Regions returns the region list, for unit tests only (mirrors the
// source's own "for unit testing only" accessor).
func (s *Storage) Regions() []region.Region { return s.regions }

// File returns the region.File this Storage was opened over, so
// collaborators outside this package (database.Watch) can recover a path
// for fsnotify without Storage needing to know about watching at all.
func (s *Storage) File() region.File { return s.file }

// SyncFile flushes the backing file to stable storage, used by Database's
// commit path to make a footer durable before swinging the header pointer
// (spec §4.E, §7).
func (s *Storage) SyncFile() error { return s.file.Sync() }

// SegmentBase returns the mapped byte slice for segment. It panics if
// segment exceeds the current allocation: spec.md specifies this as
// undefined behavior guarded by a checked assert, not a recoverable error.
func (s *Storage) SegmentBase(segment address.SegmentType) []byte {
	if segment >= uint64(len(s.sat)) || !s.sat[segment].valid() {
		stderrors.InvariantBounds("SAT_SEGMENT_UNMAPPED",
			fmt.Sprintf("segment %d has no live SAT entry (sat length %d)", segment, len(s.sat)),
			map[string]interface{}{"segment": segment, "sat_len": len(s.sat)})
	}

	return s.sat[segment].slice(s.sizes.SegmentSize)
}

// AddressToPointer returns the byte slice starting at addr and running to
// the end of its containing segment.
func (s *Storage) AddressToPointer(addr address.Address) []byte {
	base := s.SegmentBase(s.codec.Segment(addr))

	return base[s.codec.Offset(addr):]
}

// RequestSpansRegions reports whether [addr, addr+size) crosses a region
// boundary (spec §4.C). AlwaysSpanning forces true unconditionally.
func (s *Storage) RequestSpansRegions(addr address.Address, size uint64) bool {
	if s.AlwaysSpanning {
		return true
	}

	segment := s.codec.Segment(addr)
	if segment >= uint64(len(s.sat)) || !s.sat[segment].valid() {
		stderrors.InvariantBounds("SAT_SPAN_CHECK_UNMAPPED",
			fmt.Sprintf("segment %d has no live SAT entry", segment), nil)
	}

	entry := s.sat[segment]
	bytesLeftInRegion := entry.reg.Size() - entry.regionOffset - s.codec.Offset(addr)

	return size > bytesLeftInRegion
}

// Copier is the signature of one piecewise copy step between an in-store
// slice and a scratch buffer of the same length. Copy and CopyTo do not
// take a Copier: Copy always copies from the store into scratch, and
// CopyTo always copies from data into the store.
type Copier func(inStore []byte, scratch []byte)

// Copy reads size bytes starting at addr into scratch, one segment at a
// time in ascending segment order, so the range may cross segment and
// region boundaries. scratch must have length size.
func (s *Storage) Copy(addr address.Address, size uint64, scratch []byte) result.Result[struct{}] {
	if uint64(len(scratch)) != size {
		stderrors.InvariantBounds("STORAGE_COPY_SCRATCH_SIZE",
			"scratch buffer length must equal requested size", nil)
	}

	segment := s.codec.Segment(addr)
	if segment >= uint64(len(s.sat)) {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			fmt.Sprintf("segment %d beyond current allocation", segment)))
	}

	return s.copyChunks(segment, s.codec.Offset(addr), size, scratch)
}

// copyChunks is Copy's actual loop; split out so Copy's signature stays
// close to storage::copy's documented contract while the iteration itself
// reads naturally as "walk entries forward consuming scratch".
func (s *Storage) copyChunks(segment address.SegmentType, firstOffset, size uint64, scratch []byte) result.Result[struct{}] {
	pos := uint64(0)
	segSize := s.sizes.SegmentSize

	for pos < size {
		if segment >= uint64(len(s.sat)) || !s.sat[segment].valid() {
			return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
				fmt.Sprintf("segment %d has no live SAT entry mid-copy", segment)))
		}

		entry := s.sat[segment]

		startInRegion := uint64(0)
		if pos == 0 {
			startInRegion = firstOffset
		}

		avail := segSize - startInRegion
		remaining := size - pos

		n := avail
		if remaining < n {
			n = remaining
		}

		regionSlice := entry.slice(segSize)[startInRegion : startInRegion+n]
		copy(scratch[pos:pos+n], regionSlice)

		pos += n
		segment++
	}

	return result.Ok(struct{}{})
}

// CopyTo writes data into the store starting at addr, the inverse
// direction of Copy, one segment at a time so the range may cross region
// boundaries. Transaction.Write and Database's header and footer writes
// use it.
func (s *Storage) CopyTo(addr address.Address, data []byte) result.Result[struct{}] {
	segment := s.codec.Segment(addr)
	pos := uint64(0)
	size := uint64(len(data))
	segSize := s.sizes.SegmentSize

	for pos < size {
		if segment >= uint64(len(s.sat)) || !s.sat[segment].valid() {
			return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
				fmt.Sprintf("segment %d has no live SAT entry mid-write", segment)))
		}

		entry := s.sat[segment]

		startInRegion := uint64(0)
		if pos == 0 {
			startInRegion = s.codec.Offset(addr)
		}

		avail := segSize - startInRegion
		remaining := size - pos

		n := avail
		if remaining < n {
			n = remaining
		}

		regionSlice := entry.slice(segSize)[startInRegion : startInRegion+n]
		copy(regionSlice, data[pos:pos+n])

		pos += n
		segment++
	}

	return result.Ok(struct{}{})
}

// Protect marks [first, last) read-only, partitioning the range per region
// and delegating to Region.Protect for each slice (spec §4.C).
func (s *Storage) Protect(first, last address.Address) result.Result[struct{}] {
	segment := s.codec.Segment(first)
	pos := first
	segSize := s.sizes.SegmentSize

	for pos.Compare(last) < 0 {
		if segment >= uint64(len(s.sat)) || !s.sat[segment].valid() {
			return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
				fmt.Sprintf("segment %d has no live SAT entry", segment)))
		}

		entry := s.sat[segment]
		segmentEnd := s.codec.New(segment, 0).Add(segSize)

		rangeEnd := last
		if segmentEnd.Compare(last) < 0 {
			rangeEnd = segmentEnd
		}

		regionFirst := entry.regionOffset + s.codec.Offset(pos)
		regionLast := entry.regionOffset + s.codec.Offset(rangeEnd)

		if s.codec.Segment(rangeEnd) != segment {
			regionLast = entry.regionOffset + segSize
		}

		if err := entry.reg.Protect(regionFirst, regionLast); err != nil {
			return result.Err[struct{}](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
		}

		segment++
		pos = s.codec.New(segment, 0)
	}

	return result.Ok(struct{}{})
}
