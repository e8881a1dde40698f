package storage_test

import (
	"bytes"
	"testing"

	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/storage"
)

func smallSizes() region.Sizes {
	return region.Sizes{SegmentSize: 16, MinRegionSize: 16, FullRegionSize: 32}
}

func TestMapBytesAndSegmentBase(t *testing.T) {
	file := region.NewMemoryFile()
	factory := region.NewMemoryRegionFactory(file, smallSizes())

	st := storage.Open(file, factory, smallSizes())
	if !st.IsOk() {
		t.Fatalf("open failed: %v", st.Error())
	}

	s := st.Value()

	if !s.MapBytes(40).IsOk() {
		t.Fatalf("map_bytes failed")
	}

	base := s.SegmentBase(0)
	if len(base) != 16 {
		t.Fatalf("expected segment size 16, got %d", len(base))
	}
}

func TestRequestSpansRegions(t *testing.T) {
	file := region.NewMemoryFile()
	factory := region.NewMemoryRegionFactory(file, smallSizes())
	s := storage.Open(file, factory, smallSizes()).Value()

	if !s.MapBytes(64).IsOk() {
		t.Fatalf("map_bytes failed")
	}

	// A 20-byte blob straddling the boundary at offset 24 (scenario 3 of
	// spec §8): segment_size=16, so offset 24 is segment 1 offset 8, and
	// the request runs to offset 44 (segment 2, offset 12) — it spans.
	codec := s.Codec()
	addr := codec.New(1, 8)

	if !s.RequestSpansRegions(addr, 20) {
		t.Fatalf("expected a 20-byte request at offset 24 to span segments")
	}

	if s.RequestSpansRegions(codec.New(0, 0), 4) {
		t.Fatalf("a 4-byte request within one segment must not span")
	}
}

func TestCopySpanEquivalence(t *testing.T) {
	file := region.NewMemoryFile()
	factory := region.NewMemoryRegionFactory(file, smallSizes())
	s := storage.Open(file, factory, smallSizes()).Value()

	if !s.MapBytes(64).IsOk() {
		t.Fatalf("map_bytes failed")
	}

	want := bytes.Repeat([]byte{0xAB}, 20)
	writeAddr := s.Codec().New(1, 8)

	if !s.CopyTo(writeAddr, want).IsOk() {
		t.Fatalf("copy_to failed")
	}

	got := make([]byte, 20)

	r := s.Copy(writeAddr, 20, got)
	if !r.IsOk() {
		t.Fatalf("copy failed: %v", r.Error())
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("span-copy round trip mismatch: got %x want %x", got, want)
	}
}

func TestSegmentBaseOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range segment")
		}
	}()

	file := region.NewMemoryFile()
	factory := region.NewMemoryRegionFactory(file, smallSizes())
	s := storage.Open(file, factory, smallSizes()).Value()

	s.SegmentBase(999)
}
