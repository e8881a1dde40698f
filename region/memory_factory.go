package region

import (
	"fmt"

	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"
)

// memoryRegion is a Region backed by a plain heap buffer rather than an
// mmap'd file. Protect is tracked but not enforced by the OS — writes past
// a "protected" memoryRegion are a test bug, not a segfault.
type memoryRegion struct {
	*baseRegion
}

func (r *memoryRegion) Protect(first, last uint64) error {
	return r.protectMemory(first, last)
}

// MemoryFile is an in-memory stand-in for the File collaborator, letting
// tests exercise Storage/Database/Transaction without a real file on disk.
type MemoryFile struct {
	buf []byte
}

// NewMemoryFile returns an empty in-memory file.
func NewMemoryFile() *MemoryFile { return &MemoryFile{} }

func (f *MemoryFile) Length() (uint64, error) { return uint64(len(f.buf)), nil }

func (f *MemoryFile) SetLength(n uint64) error {
	if uint64(len(f.buf)) >= n {
		f.buf = f.buf[:n]

		return nil
	}

	grown := make([]byte, n)
	copy(grown, f.buf)
	f.buf = grown

	return nil
}

func (f *MemoryFile) Sync() error { return nil }

// Bytes exposes the backing buffer directly; used by MemoryRegionFactory so
// that regions alias the same storage the File reports a length for.
func (f *MemoryFile) Bytes() []byte { return f.buf }

// MemoryRegionFactory implements Factory directly over a MemoryFile's
// backing slice: each Region's Bytes() is a sub-slice of the same
// underlying array, so growth never invalidates previously handed-out
// regions (re-slicing a grown Go slice whose capacity was pre-reserved
// does not move already-read data; we additionally never shrink the
// capacity, matching the "never remap a handed-out region" contract).
type MemoryRegionFactory struct {
	file   *MemoryFile
	sizes  Sizes
	issued []Region // regions already handed out, in ascending offset order
}

// NewMemoryRegionFactory constructs a factory over file using sizes, which
// must already have passed Sizes.Validate.
func NewMemoryRegionFactory(file *MemoryFile, sizes Sizes) *MemoryRegionFactory {
	return &MemoryRegionFactory{file: file, sizes: sizes}
}

func (f *MemoryRegionFactory) Init() result.Result[[]Region] {
	length, _ := f.file.Length()
	if length == 0 {
		return result.Ok[[]Region](nil)
	}

	return f.growTo(length)
}

func (f *MemoryRegionFactory) Add(newSize uint64) result.Result[[]Region] {
	oldLength, _ := f.file.Length()
	if newSize <= oldLength {
		return result.Ok[[]Region](nil)
	}

	if newSize > f.sizes.FullRegionSize*uint64(1<<20) {
		// An arbitrarily generous ceiling: MemoryRegionFactory exists for
		// tests, which never approach real address-space limits; a real
		// excess only ever shows up against osfile's Factory.
		return result.Err[[]Region](perrors.New(perrors.CategoryStore, perrors.StoreFull,
			fmt.Sprintf("requested size %d exceeds test ceiling", newSize)))
	}

	if err := f.file.SetLength(newSize); err != nil {
		return result.Err[[]Region](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
	}

	return f.growTo(newSize)
}

// growTo slices [coveredSoFar, newSize) of the file's backing buffer into
// Regions of size f.sizes.MinRegionSize (rounding the final one up so the
// tail is never smaller than MinRegionSize), matching spec §4.B.
func (f *MemoryRegionFactory) growTo(newSize uint64) result.Result[[]Region] {
	var covered uint64

	for _, r := range f.issued {
		covered += r.Size()
	}

	var added []Region

	for covered < newSize {
		remaining := newSize - covered
		size := f.sizes.MinRegionSize

		if remaining < size {
			size = RoundUpToMultiple(remaining, f.sizes.MinRegionSize)
		}

		if covered+size > uint64(len(f.file.Bytes())) {
			if err := f.file.SetLength(covered + size); err != nil {
				return result.Err[[]Region](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
			}
		}

		buf := f.file.Bytes()[covered : covered+size : covered+size]
		r := &memoryRegion{baseRegion: newBaseRegion(buf)}
		added = append(added, r)
		f.issued = append(f.issued, r)
		covered += size
	}

	return result.Ok(added)
}
