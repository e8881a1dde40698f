package transaction_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/config"
	"github.com/orizon-lang/pstore/database"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/transaction"
)

func smallConfig() config.Config {
	return config.Config{
		SegmentSize:    region.DefaultSizes.SegmentSize,
		MinRegionSize:  region.DefaultSizes.MinRegionSize,
		FullRegionSize: region.DefaultSizes.FullRegionSize,
		Mode:           config.ReadWrite,
	}
}

func openFresh(t *testing.T) *database.Database {
	t.Helper()

	file := region.NewMemoryFile()
	factory := region.NewMemoryRegionFactory(file, smallConfig().Sizes())

	db := database.Open(file, factory, smallConfig(), nil)
	if !db.IsOk() {
		t.Fatalf("open failed: %v", db.Error())
	}

	return db.Value()
}

func TestBeginAllocWriteCommitRoundTrip(t *testing.T) {
	db := openFresh(t)

	tx := transaction.Begin(db)
	if !tx.IsOk() {
		t.Fatalf("begin failed: %v", tx.Error())
	}

	txn := tx.Value()

	addr := txn.AllocRW(8, 8)
	if !addr.IsOk() {
		t.Fatalf("alloc failed: %v", addr.Error())
	}

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if w := txn.Write(addr.Value(), payload); !w.IsOk() {
		t.Fatalf("write failed: %v", w.Error())
	}

	var roots transaction.IndexRoots
	for i := range roots {
		roots[i] = address.Null
	}

	committed := txn.Commit(roots)
	if !committed.IsOk() {
		t.Fatalf("commit failed: %v", committed.Error())
	}

	if committed.Value().Generation != 0 {
		t.Fatalf("expected first commit to be generation 0, got %d", committed.Value().Generation)
	}

	got := db.At(addr.Value(), 8)
	if !got.IsOk() {
		t.Fatalf("read back after commit failed: %v", got.Error())
	}

	for i, b := range got.Value() {
		if b != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, b, payload[i])
		}
	}
}

func TestSecondCommitIncrementsGeneration(t *testing.T) {
	db := openFresh(t)

	var roots transaction.IndexRoots
	for i := range roots {
		roots[i] = address.Null
	}

	first := transaction.Begin(db)
	if !first.IsOk() || !first.Value().Commit(roots).IsOk() {
		t.Fatalf("first commit failed")
	}

	second := transaction.Begin(db)
	if !second.IsOk() {
		t.Fatalf("begin failed: %v", second.Error())
	}

	committed := second.Value().Commit(roots)
	if !committed.IsOk() {
		t.Fatalf("second commit failed: %v", committed.Error())
	}

	if committed.Value().Generation != 1 {
		t.Fatalf("expected generation 1 after second commit, got %d", committed.Value().Generation)
	}

	if committed.Value().Prev.IsNull() {
		t.Fatalf("second footer must point back at the first")
	}
}

func TestTryBeginFailsWhileAnotherTransactionIsOpen(t *testing.T) {
	db := openFresh(t)

	first := transaction.Begin(db)
	if !first.IsOk() {
		t.Fatalf("begin failed: %v", first.Error())
	}

	second := transaction.TryBegin(db)
	if second.IsOk() {
		t.Fatalf("expected TryBegin to fail while a transaction is open")
	}

	first.Value().Rollback()

	third := transaction.TryBegin(db)
	if !third.IsOk() {
		t.Fatalf("expected TryBegin to succeed once the first transaction released its lock: %v", third.Error())
	}

	third.Value().Rollback()
}

func TestRollbackDoesNotAdvanceCommittedSize(t *testing.T) {
	db := openFresh(t)

	sizeBefore := db.GetFooter().Size

	tx := transaction.Begin(db)
	if !tx.IsOk() {
		t.Fatalf("begin failed: %v", tx.Error())
	}

	if a := tx.Value().AllocRW(64, 8); !a.IsOk() {
		t.Fatalf("alloc failed: %v", a.Error())
	}

	tx.Value().Rollback()

	if db.GetFooter().Size != sizeBefore {
		t.Fatalf("rollback must not change the committed footer size: got %d want %d",
			db.GetFooter().Size, sizeBefore)
	}

	next := transaction.Begin(db)
	if !next.IsOk() {
		t.Fatalf("begin after rollback failed: %v", next.Error())
	}

	reused := next.Value().AllocRW(8, 8)
	if !reused.IsOk() {
		t.Fatalf("alloc after rollback failed: %v", reused.Error())
	}

	if reused.Value().Raw() != address.FromRaw(sizeBefore).Raw() {
		t.Fatalf("next transaction must continue from the last committed size, not the rolled-back cursor")
	}

	next.Value().Rollback()
}

// TestConcurrentTryBeginOnlyOneWins races many goroutines through
// TryBegin, asserting spec.md §5's single-writer rule holds under real
// concurrency, not just sequential calls.
func TestConcurrentTryBeginOnlyOneWins(t *testing.T) {
	db := openFresh(t)

	var wins, open atomic.Int32

	var g errgroup.Group

	for i := 0; i < 16; i++ {
		g.Go(func() error {
			tx := transaction.TryBegin(db)
			if !tx.IsOk() {
				return nil
			}

			wins.Add(1)

			if n := open.Add(1); n != 1 {
				return fmt.Errorf("%d transactions open at once", n)
			}

			open.Add(-1)
			tx.Value().Rollback()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wins.Load() == 0 {
		t.Fatalf("expected at least one TryBegin to succeed")
	}
}
