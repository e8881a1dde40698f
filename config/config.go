// Package config defines pstore.Config: the construction-time knobs that
// must stay mutually consistent across Storage, Database, and Transaction —
// segment/region sizing, open mode, and the vacuum advisory flag.
package config

import (
	"fmt"

	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/result"
)

// AccessMode selects how osfile.Open opens a store file and which file
// lock it acquires (spec §4.D, §5). Database.Open itself takes no file lock.
type AccessMode int

const (
	// ReadOnly opens the file read-only under a shared file lock; multiple
	// readers may hold a database open concurrently.
	ReadOnly AccessMode = iota
	// ReadWrite opens (creating if needed) the file read-write under an
	// exclusive file lock held for as long as the File stays open.
	ReadWrite
)

func (m AccessMode) String() string {
	if m == ReadWrite {
		return "read-write"
	}

	return "read-only"
}

// Config bundles every construction-time parameter a Database needs: region
// sizing (spec §4.B, §6), the always-spanning testing switch (spec §9), the
// access mode it will be opened with, and the initial vacuum-mode flag
// (spec §4.D).
type Config struct {
	SegmentSize    uint64
	MinRegionSize  uint64
	FullRegionSize uint64

	// AlwaysSpanning forces Storage.RequestSpansRegions to report true
	// unconditionally. This is the PSTORE_ALWAYS_SPANNING testing switch
	// (spec §9); production behavior is identical to the default (false).
	AlwaysSpanning bool

	Mode AccessMode

	VacuumMode bool
}

// Default matches spec.md §6: 4 MiB segments, 4 MiB minimum region growth,
// 4 GiB full region size, read-write, vacuum off.
var Default = Config{
	SegmentSize:    region.DefaultSizes.SegmentSize,
	MinRegionSize:  region.DefaultSizes.MinRegionSize,
	FullRegionSize: region.DefaultSizes.FullRegionSize,
	Mode:           ReadWrite,
}

// Sizes projects the region-sizing fields into a region.Sizes, the shape
// Storage.Open and region.Factory implementations expect.
func (c Config) Sizes() region.Sizes {
	return region.Sizes{
		SegmentSize:    c.SegmentSize,
		MinRegionSize:  c.MinRegionSize,
		FullRegionSize: c.FullRegionSize,
	}
}

// Validate checks the power-of-two and divisibility invariants spec.md
// §4.B and §6 require, delegating to region.Sizes.Validate and rejecting a
// zero SegmentSize up front with a clearer message.
func (c Config) Validate() result.Result[Config] {
	if c.SegmentSize == 0 {
		return result.Err[Config](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"segment size must be non-zero"))
	}

	sizes := c.Sizes().Validate()
	if !sizes.IsOk() {
		return result.Err[Config](sizes.Error())
	}

	return result.Ok(c)
}

func (c Config) String() string {
	return fmt.Sprintf("config{segment=%d min_region=%d full_region=%d mode=%s vacuum=%v always_spanning=%v}",
		c.SegmentSize, c.MinRegionSize, c.FullRegionSize, c.Mode, c.VacuumMode, c.AlwaysSpanning)
}
