package index_test

import (
	"fmt"
	"testing"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/index"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"
)

// arena is a minimal in-memory Reader+Writer, standing in for a
// transaction during index-only tests: it never straddles regions, so it
// needs none of Storage's spanning logic.
type arena struct {
	buf []byte
}

func (a *arena) At(addr address.Address, size uint64) result.Result[[]byte] {
	off := addr.Raw()
	if off+size > uint64(len(a.buf)) {
		return result.Err[[]byte](perrors.New(perrors.CategoryStore, perrors.CorruptHeader, "read past arena end"))
	}

	return result.Ok(append([]byte(nil), a.buf[off:off+size]...))
}

func (a *arena) AllocRW(size, align uint64) result.Result[address.Address] {
	cur := uint64(len(a.buf))
	if cur == 0 {
		// Offset 0 is address.Null, which the trie reads as an empty slot;
		// a real store keeps its header there, so never hand it out.
		cur = 1
	}

	start := (cur + align - 1) / align * align
	a.buf = append(a.buf, make([]byte, start+size-uint64(len(a.buf)))...)

	return result.Ok(address.FromRaw(start))
}

func (a *arena) Write(addr address.Address, data []byte) result.Result[struct{}] {
	off := addr.Raw()
	copy(a.buf[off:off+uint64(len(data))], data)

	return result.Ok(struct{}{})
}

func TestMapInsertFindRoundTrip(t *testing.T) {
	a := &arena{}
	tr := index.New[string, uint64](a, index.StringKeyCodec{}, uint64ValueCodec{}, address.Null)

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i)

		r := tr.Insert(key, uint64(i))
		if !r.IsOk() || !r.Value().Inserted {
			t.Fatalf("insert %s failed or reported not-inserted", key)
		}
	}

	root := tr.Flush(a)
	if !root.IsOk() {
		t.Fatalf("flush failed: %v", root.Error())
	}

	// Fresh read-only trie over the same arena, rooted at the flushed
	// address, mirrors a "fresh read-only open" (spec §8 scenario 4).
	reopened := index.New[string, uint64](a, index.StringKeyCodec{}, uint64ValueCodec{}, root.Value())

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i)

		found := reopened.Find(key)
		if !found.IsOk() {
			t.Fatalf("find %s failed: %v", key, found.Error())
		}

		fr := found.Value()
		if !fr.Found || fr.Value != uint64(i) {
			t.Fatalf("find %s: want %d, got found=%v value=%d", key, i, fr.Found, fr.Value)
		}
	}
}

func TestSetIdempotentInsert(t *testing.T) {
	a := &arena{}
	set := index.NewSet[string](a, index.StringKeyCodec{}, address.Null)

	first := set.Insert("x", struct{}{})
	if !first.IsOk() || !first.Value().Inserted {
		t.Fatalf("first insert must report Inserted=true")
	}

	second := set.Insert("x", struct{}{})
	if !second.IsOk() || second.Value().Inserted {
		t.Fatalf("second insert of an equal key must report Inserted=false")
	}
}

func TestFindMissingKey(t *testing.T) {
	a := &arena{}
	tr := index.New[string, uint64](a, index.StringKeyCodec{}, uint64ValueCodec{}, address.Null)

	tr.Insert("present", 1)

	found := tr.Find("absent")
	if !found.IsOk() || found.Value().Found {
		t.Fatalf("expected absent key to report Found=false")
	}
}

type uint64ValueCodec struct{}

func (uint64ValueCodec) Encode(v uint64) []byte {
	return index.Uint64KeyCodec{}.Encode(v)
}

func (uint64ValueCodec) Decode(b []byte) uint64 {
	return index.Uint64KeyCodec{}.Decode(b)
}
