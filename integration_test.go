package pstore_test

import (
	"testing"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/config"
	"github.com/orizon-lang/pstore/database"
	"github.com/orizon-lang/pstore/index"
	"github.com/orizon-lang/pstore/indirectstring"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/transaction"
)

// addressValueCodec encodes an address.Address as 8 little-endian bytes,
// the shape every on-disk index value in this module uses.
type addressValueCodec struct{}

func (addressValueCodec) Encode(v address.Address) []byte {
	buf := make([]byte, 8)
	raw := v.Raw()

	for i := 0; i < 8; i++ {
		buf[i] = byte(raw >> (8 * i))
	}

	return buf
}

func (addressValueCodec) Decode(b []byte) address.Address {
	var raw uint64
	for i := 0; i < 8; i++ {
		raw |= uint64(b[i]) << (8 * i)
	}

	return address.FromRaw(raw)
}

func smallConfig() config.Config {
	return config.Config{
		SegmentSize:    region.DefaultSizes.SegmentSize,
		MinRegionSize:  region.DefaultSizes.MinRegionSize,
		FullRegionSize: region.DefaultSizes.FullRegionSize,
		Mode:           config.ReadWrite,
	}
}

// TestOpenWriteStringReopenFind exercises spec.md §8 scenario 1 end to
// end: open an empty database, write one indirect string through a
// transaction backed by the name index, commit, then reopen the same
// backing file from scratch and confirm the string and its index root
// both survive.
func TestOpenWriteStringReopenFind(t *testing.T) {
	file := region.NewMemoryFile()
	cfg := smallConfig()
	factory := region.NewMemoryRegionFactory(file, cfg.Sizes())

	db := database.Open(file, factory, cfg, nil)
	if !db.IsOk() {
		t.Fatalf("open failed: %v", db.Error())
	}

	tx := transaction.Begin(db.Value())
	if !tx.IsOk() {
		t.Fatalf("begin failed: %v", tx.Error())
	}

	txn := tx.Value()

	nameIndex := index.New[string, address.Address](txn, indirectstring.BodyKeyCodec{}, addressValueCodec{}, address.Null)
	adder := indirectstring.NewAdder(nameIndex)

	added := adder.Add(txn, "hello-pstore")
	if !added.IsOk() {
		t.Fatalf("add failed: %v", added.Error())
	}

	root := nameIndex.Flush(txn)
	if !root.IsOk() {
		t.Fatalf("flush failed: %v", root.Error())
	}

	var roots transaction.IndexRoots
	roots[database.NameIndex] = root.Value()

	committed := txn.Commit(roots)
	if !committed.IsOk() {
		t.Fatalf("commit failed: %v", committed.Error())
	}

	// Reopen as if this were a fresh process: a new Database over the same
	// backing file and factory.
	reopened := database.Open(file, region.NewMemoryRegionFactory(file, cfg.Sizes()), cfg, nil)
	if !reopened.IsOk() {
		t.Fatalf("reopen failed: %v", reopened.Error())
	}

	rdb := reopened.Value()
	reopenedRoot := rdb.GetIndexRoot(database.NameIndex)

	if reopenedRoot != root.Value() {
		t.Fatalf("name index root did not survive reopen: got %v want %v", reopenedRoot, root.Value())
	}

	reopenedIndex := index.New[string, address.Address](rdb, indirectstring.BodyKeyCodec{}, addressValueCodec{}, reopenedRoot)

	found := reopenedIndex.Find("hello-pstore")
	if !found.IsOk() || !found.Value().Found {
		t.Fatalf("expected to find the committed string after reopen: %v %v", found.Value(), found.Error())
	}

	stored := indirectstring.NewStored(rdb, found.Value().Value)

	asString := stored.AsString()
	if !asString.IsOk() || asString.Value() != "hello-pstore" {
		t.Fatalf("round-tripped string mismatch: %v %v", asString.Value(), asString.Error())
	}
}
