//go:build unix

package osfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/pstore/config"
	"github.com/orizon-lang/pstore/osfile"
	"github.com/orizon-lang/pstore/region"
)

func TestOpenCreatesFileAndLocksExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.pst")

	f, err := osfile.Open(path, config.ReadWrite)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	if f.Path() != path {
		t.Fatalf("Path mismatch: got %q want %q", f.Path(), path)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}

	length, err := f.Length()
	if err != nil || length != 0 {
		t.Fatalf("expected empty new file, got length=%d err=%v", length, err)
	}
}

func TestFactoryGrowsAndMapsRegions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.pst")

	f, err := osfile.Open(path, config.ReadWrite)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	sizes := region.Sizes{SegmentSize: 4096, MinRegionSize: 4096, FullRegionSize: 4096 * 16}
	factory := osfile.NewFactory(f, sizes)

	added := factory.Add(4096)
	if !added.IsOk() {
		t.Fatalf("Add failed: %v", added.Error())
	}

	if len(added.Value()) != 1 {
		t.Fatalf("expected exactly one region for one MinRegionSize chunk, got %d", len(added.Value()))
	}

	r := added.Value()[0]
	if r.Size() != 4096 {
		t.Fatalf("expected region size 4096, got %d", r.Size())
	}

	r.Bytes()[0] = 0xAB

	length, err := f.Length()
	if err != nil || length != 4096 {
		t.Fatalf("expected file length 4096 after Add, got %d err=%v", length, err)
	}
}
