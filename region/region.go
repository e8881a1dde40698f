// Package region defines the Region and RegionFactory abstractions that sit
// between Storage (the segment address table) and the concrete File
// collaborator: a Region is a contiguous memory-mapped view of one range
// of the store file, and a RegionFactory produces the views that cover the
// file's current length, growing them as the file grows.
//
// Two RegionFactory implementations exist: osfile's mmap-backed one for
// production use, and MemoryRegionFactory here, backed by plain heap
// buffers, for tests that want Storage/Database/Transaction behavior without
// a real file.
package region

import (
	"fmt"
	"sync"

	stderrors "github.com/orizon-lang/pstore/internal/errors"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"
)

// File is the capability pstore needs from an underlying OS file. It is
// implemented by package osfile over *os.File, and by fakes in tests.
type File interface {
	// Length returns the current file length in bytes.
	Length() (uint64, error)
	// SetLength grows or truncates the file to exactly n bytes.
	SetLength(n uint64) error
	// Sync flushes any buffered writes and metadata to stable storage.
	Sync() error
}

// Region is a contiguous mapped view of Size bytes of the backing file,
// starting where the previously issued Region ends, where Size is a
// multiple of the configured segment size.
//
// Bytes returns a live view: writes through it are writes to the mapped
// file (or, for MemoryRegionFactory, to the backing in-memory buffer).
// Implementations never remap a Region that has already been handed out —
// existing []byte slices, and any pointers derived from them, remain valid
// for the Region's lifetime.
type Region interface {
	// Bytes returns the region's backing storage. len(Bytes()) == Size().
	Bytes() []byte
	// Size returns the region's length in bytes.
	Size() uint64
	// ReadOnly reports whether the region is currently protected against
	// writes.
	ReadOnly() bool
	// Protect marks the byte range [first, last) — offsets relative to
	// the region's own start — read-only. It is a no-op if the range is
	// already read-only. Both implementations in this module check only
	// that the range lies inside the region and then make the whole
	// region read-only.
	Protect(first, last uint64) error
}

// Factory produces the Regions that cover a store file's current length,
// and grows them (or appends new ones) as the file grows.
type Factory interface {
	// Init returns the Regions covering the file's length at the time
	// Init is called.
	Init() result.Result[[]Region]
	// Add grows the file (if necessary) to newSize and returns the
	// Regions appended to reach it — i.e. the regions covering
	// [old file length, newSize), not the full region list.
	Add(newSize uint64) result.Result[[]Region]
}

// Sizes bundles the three region/segment size constants spec.md §6 requires
// callers to keep mutually consistent: SegmentSize divides FullRegionSize,
// SegmentSize is a power of two, and FullRegionSize is a multiple of
// MinRegionSize.
type Sizes struct {
	SegmentSize    uint64
	MinRegionSize  uint64
	FullRegionSize uint64
}

// DefaultSizes matches spec.md §6: 4 MiB segments, 4 MiB minimum region
// growth, 4 GiB maximum (full) region size.
var DefaultSizes = Sizes{
	SegmentSize:    1 << 22,
	MinRegionSize:  1 << 22,
	FullRegionSize: 1 << 32,
}

// Validate checks the power-of-two and divisibility invariants spec.md §4.B
// and §6 require of a Sizes value.
func (s Sizes) Validate() result.Result[Sizes] {
	if !isPowerOfTwo(s.SegmentSize) {
		return result.Err[Sizes](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			fmt.Sprintf("segment size %d is not a power of two", s.SegmentSize)))
	}

	if !isPowerOfTwo(s.MinRegionSize) {
		return result.Err[Sizes](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			fmt.Sprintf("min region size %d is not a power of two", s.MinRegionSize)))
	}

	if s.FullRegionSize%s.MinRegionSize != 0 {
		return result.Err[Sizes](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"full_region_size must be a multiple of min_region_size"))
	}

	if s.FullRegionSize%s.SegmentSize != 0 {
		return result.Err[Sizes](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"segment_size must divide full_region_size"))
	}

	return result.Ok(s)
}

func isPowerOfTwo(n uint64) bool { return n != 0 && n&(n-1) == 0 }

// RoundUpToMultiple rounds n up to the next multiple of m (m must be a
// power of two; callers only ever pass region/segment sizes here).
func RoundUpToMultiple(n, m uint64) uint64 {
	if m == 0 {
		stderrors.InvariantBounds("REGION_ROUND_ZERO_MODULUS", "round-up modulus must be non-zero", nil)
	}

	return (n + m - 1) / m * m
}

// baseRegion is the shared implementation backing both the mmap-based and
// in-memory Region variants: a byte slice plus a read-only watermark.
type baseRegion struct {
	mu       sync.RWMutex
	buf      []byte
	readOnly []bool // holds a single true once any range has been protected
	granule  uint64 // Protect() granularity; here, the whole region protects atomically once any byte in it is protected
}

func newBaseRegion(buf []byte) *baseRegion {
	return &baseRegion{buf: buf}
}

func (r *baseRegion) Bytes() []byte { return r.buf }

func (r *baseRegion) Size() uint64 { return uint64(len(r.buf)) }

func (r *baseRegion) ReadOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.readOnly) > 0 && r.readOnly[0]
}

func (r *baseRegion) protectMemory(first, last uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if first > last || last > uint64(len(r.buf)) {
		stderrors.InvariantBounds("REGION_PROTECT_RANGE",
			fmt.Sprintf("protect range [%d,%d) outside region of size %d", first, last, len(r.buf)),
			map[string]interface{}{"first": first, "last": last, "size": len(r.buf)})
	}

	r.readOnly = []bool{true}

	return nil
}
