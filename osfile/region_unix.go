//go:build unix

package osfile

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/result"
)

// mmapRegion is a Region backed by a real mmap'd view of the file,
// grounded on the teacher's zerocopy_unix_file.go use of golang.org/x/sys/
// unix for raw syscalls, applied here to unix.Mmap/Mprotect instead of
// unix.Sendfile.
type mmapRegion struct {
	buf      []byte
	readOnly bool
}

func (r *mmapRegion) Bytes() []byte  { return r.buf }
func (r *mmapRegion) Size() uint64   { return uint64(len(r.buf)) }
func (r *mmapRegion) ReadOnly() bool { return r.readOnly }

// Protect checks that [first, last) lies within the region, then marks the
// whole region read-only via mprotect: the range only bounds-checks the
// call and does not limit which pages are protected.
func (r *mmapRegion) Protect(first, last uint64) error {
	if first > last || last > uint64(len(r.buf)) {
		return fmt.Errorf("osfile: protect range [%d,%d) outside region of size %d", first, last, len(r.buf))
	}

	if err := unix.Mprotect(r.buf, unix.PROT_READ); err != nil {
		return err
	}

	r.readOnly = true

	return nil
}

// Factory produces mmap-backed Regions over a File, growing the file (via
// ftruncate) and mapping the newly-added tail as Regions are requested
// (spec.md §4.B).
type Factory struct {
	file   *File
	sizes  region.Sizes
	issued []region.Region
}

// NewFactory constructs a Factory over file using sizes, which must
// already have passed region.Sizes.Validate.
func NewFactory(file *File, sizes region.Sizes) *Factory {
	return &Factory{file: file, sizes: sizes}
}

func (f *Factory) Init() result.Result[[]region.Region] {
	length, err := f.file.Length()
	if err != nil {
		return result.Err[[]region.Region](wrapIOError(err))
	}

	if length == 0 {
		return result.Ok[[]region.Region](nil)
	}

	return f.growTo(length)
}

func (f *Factory) Add(newSize uint64) result.Result[[]region.Region] {
	oldLength, err := f.file.Length()
	if err != nil {
		return result.Err[[]region.Region](wrapIOError(err))
	}

	if newSize <= oldLength {
		return result.Ok[[]region.Region](nil)
	}

	if err := f.file.SetLength(newSize); err != nil {
		return result.Err[[]region.Region](wrapIOError(err))
	}

	return f.growTo(newSize)
}

// growTo maps [coveredSoFar, newSize) in MinRegionSize chunks (the last
// one rounded up so the tail is never smaller), matching
// MemoryRegionFactory.growTo's chunking so Storage sees identical SAT
// shapes in tests and production.
func (f *Factory) growTo(newSize uint64) result.Result[[]region.Region] {
	var covered uint64

	for _, r := range f.issued {
		covered += r.Size()
	}

	var added []region.Region

	for covered < newSize {
		remaining := newSize - covered
		size := f.sizes.MinRegionSize

		if remaining < size {
			size = region.RoundUpToMultiple(remaining, f.sizes.MinRegionSize)
		}

		buf, err := unix.Mmap(int(f.file.Fd()), int64(covered), int(size),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return result.Err[[]region.Region](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
		}

		r := &mmapRegion{buf: buf}
		added = append(added, r)
		f.issued = append(f.issued, r)
		covered += size
	}

	return result.Ok(added)
}
