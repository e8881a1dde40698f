//go:build !unix

package osfile

import (
	"os"

	"github.com/orizon-lang/pstore/config"
)

// lock is a no-op on platforms without an x/sys/unix flock equivalent
// wired here (e.g. Windows would need LockFileEx via x/sys/windows): the
// single-writer invariant still holds in-process via Database.txMu, just
// not across separate processes on these platforms.
func lock(f *os.File, mode config.AccessMode) error { return nil }

func unlock(f *os.File) error { return nil }
