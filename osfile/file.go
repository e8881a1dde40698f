// Package osfile implements the region.File and region.Factory
// collaborators over a real on-disk file (spec.md §4.B): File wraps
// *os.File with the exclusive/shared advisory lock spec.md §5 requires a
// ReadWrite-mode Database to hold, and Factory (region_unix.go,
// region_other.go) produces mmap-backed Regions over it.
//
// Grounded on the teacher's internal/runtime/asyncio zerocopy_*.go files,
// which split one concern (zero-copy file transfer) into a Unix
// implementation built on golang.org/x/sys/unix plus a portable fallback
// selected by build tag; this package follows the same shape for mmap
// instead: a real unix.Mmap/Mprotect path behind `unix`, and a
// heap-buffer fallback everywhere else, so pstore builds (without true
// zero-copy mapping) on platforms x/sys/unix does not cover.
package osfile

import (
	"os"

	"github.com/orizon-lang/pstore/config"
	"github.com/orizon-lang/pstore/perrors"
)

// File is the production region.File: a real path on disk plus the
// advisory lock spec.md §5 uses to enforce "at most one ReadWrite opener".
type File struct {
	path string
	f    *os.File
}

// Open opens (creating if necessary) the file at path in the given mode,
// acquiring the appropriate advisory lock per spec.md §5: ReadWrite takes
// an exclusive lock for the lifetime of the File, ReadOnly a shared one.
func Open(path string, mode config.AccessMode) (*File, error) {
	flag := os.O_RDONLY
	if mode == config.ReadWrite {
		flag = os.O_RDWR | os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	if err := lock(f, mode); err != nil {
		_ = f.Close()

		return nil, err
	}

	return &File{path: path, f: f}, nil
}

// Path returns the filesystem path this File was opened from, used by
// database.Watch to start an fsnotify.Watcher on the same file.
func (fl *File) Path() string { return fl.path }

// Length returns the current file length in bytes.
func (fl *File) Length() (uint64, error) {
	info, err := fl.f.Stat()
	if err != nil {
		return 0, err
	}

	return uint64(info.Size()), nil
}

// SetLength grows or truncates the file to exactly n bytes.
func (fl *File) SetLength(n uint64) error {
	return fl.f.Truncate(int64(n))
}

// Sync flushes buffered writes and metadata to stable storage — the fsync
// CommitFooter relies on between writing a footer body and swinging the
// header pointer (spec.md §7).
func (fl *File) Sync() error { return fl.f.Sync() }

// Close releases the advisory lock and closes the underlying *os.File.
func (fl *File) Close() error {
	_ = unlock(fl.f)

	return fl.f.Close()
}

// Fd exposes the raw file descriptor for the mmap Factory in this package.
func (fl *File) Fd() uintptr { return fl.f.Fd() }

func wrapIOError(err error) *perrors.Error {
	return perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err)
}
