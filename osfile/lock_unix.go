//go:build unix

package osfile

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/orizon-lang/pstore/config"
)

func lock(f *os.File, mode config.AccessMode) error {
	how := unix.LOCK_SH
	if mode == config.ReadWrite {
		how = unix.LOCK_EX
	}

	return unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
