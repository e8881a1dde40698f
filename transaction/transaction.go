// Package transaction implements the single-writer append allocator and
// atomic footer publish spec.md §4.E describes: Begin acquires the
// database's exclusive write lock, AllocRW/Write/GetRW extend and touch
// the append region, and Commit serializes index roots into a new footer
// before swinging the header's footer pointer.
package transaction

import (
	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/database"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/plog"
	"github.com/orizon-lang/pstore/result"
)

// Transaction is the single open writer on a Database. At most one exists
// at a time (spec.md §5); a second Begin blocks until the first Commits or
// Rollbacks.
type Transaction struct {
	db     *database.Database
	log    plog.Logger
	cursor uint64 // next free raw byte offset
	open   bool
}

// Begin blocks until the write lock is free, then starts a transaction
// whose append cursor continues from the current footer's committed size.
func Begin(db *database.Database) result.Result[*Transaction] {
	if db.ReadOnly() {
		return result.Err[*Transaction](perrors.New(perrors.CategoryStore, perrors.AlreadyOpen,
			"database is read-only after a prior commit failure"))
	}

	db.AcquireWriteLock()

	return result.Ok(&Transaction{
		db:     db,
		log:    db.Logger("transaction"),
		cursor: db.GetFooter().Size,
		open:   true,
	})
}

// TryBegin is Begin's non-blocking counterpart: it fails with AlreadyOpen
// immediately if another transaction is open, rather than waiting.
func TryBegin(db *database.Database) result.Result[*Transaction] {
	if db.ReadOnly() {
		return result.Err[*Transaction](perrors.New(perrors.CategoryStore, perrors.AlreadyOpen,
			"database is read-only after a prior commit failure"))
	}

	if !db.TryAcquireWriteLock() {
		return result.Err[*Transaction](perrors.New(perrors.CategoryStore, perrors.AlreadyOpen,
			"another transaction is already open"))
	}

	return result.Ok(&Transaction{
		db:     db,
		log:    db.Logger("transaction"),
		cursor: db.GetFooter().Size,
		open:   true,
	})
}

func alignUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}

	return (n + align - 1) / align * align
}

// AllocRW reserves size bytes at the current cursor, aligned to align,
// growing the file via Storage.MapBytes as needed. It returns the
// reservation's Address; the bytes are not yet durable or visible to any
// other reader until Commit.
func (t *Transaction) AllocRW(size, align uint64) result.Result[address.Address] {
	t.mustBeOpen()

	start := alignUp(t.cursor, align)
	end := start + size

	if r := t.db.Storage().MapBytes(end); !r.IsOk() {
		return result.Err[address.Address](r.Error())
	}

	t.cursor = end

	return result.Ok(address.FromRaw(start))
}

// At reads size bytes starting at addr, including bytes this same
// transaction has written but not yet committed — used by index.Trie to
// resolve in-store (not-yet-flushed-this-transaction) children while
// building a new root.
func (t *Transaction) At(addr address.Address, size uint64) result.Result[[]byte] {
	return t.db.At(addr, size)
}

// Write copies data into the store at addr, which must have been returned
// by a prior AllocRW covering at least len(data) bytes. It may straddle a
// region boundary; Storage.CopyTo handles that transparently.
func (t *Transaction) Write(addr address.Address, data []byte) result.Result[struct{}] {
	t.mustBeOpen()

	return t.db.Storage().CopyTo(addr, data)
}

// GetRW returns a direct writable view of size bytes reserved at addr. It
// panics if the range spans a region boundary: callers that need spanning
// writes must use Write instead. In practice HAMT nodes and IndirectString
// headers are always smaller than one segment, so this is the common
// path (spec.md §4.E).
func (t *Transaction) GetRW(addr address.Address, size uint64) []byte {
	t.mustBeOpen()

	if t.db.Storage().RequestSpansRegions(addr, size) {
		panic("transaction.GetRW: request spans regions; use Write instead")
	}

	return t.db.Storage().AddressToPointer(addr)[:size]
}

func (t *Transaction) mustBeOpen() {
	if !t.open {
		panic("transaction: use of a transaction after Commit or Rollback")
	}
}

// IndexRoots is the set of HAMT roots a committing transaction must
// supply, one per database.IndexKind.
type IndexRoots [database.IndexKindCount]address.Address

// Commit reserves and writes a new footer recording size (the cursor),
// the previous footer's address, roots, and a computed CRC, then
// atomically swings the database header's footer pointer (spec.md §4.E).
// Ordering guarantee: allocation order within this transaction is program
// order; the footer is the last thing allocated, so it observes every
// prior AllocRW's cursor advance.
func (t *Transaction) Commit(roots IndexRoots) result.Result[database.Footer] {
	t.mustBeOpen()
	defer t.release()

	prevFooter := t.db.GetFooter()
	prevAddr := t.db.FooterHeadAddress()

	footerAddr := t.AllocRW(uint64(database.FooterSize), 8)
	if !footerAddr.IsOk() {
		return result.Err[database.Footer](footerAddr.Error())
	}

	// Generation numbering starts at 0 (spec.md §4.D): the first commit's
	// footer is generation 0, identified by the fact that no footer has
	// ever been published (prevAddr is still Null).
	generation := uint64(0)
	if !prevAddr.IsNull() {
		generation = prevFooter.Generation + 1
	}

	newFooter := database.Footer{
		Generation:   generation,
		Size:         t.cursor,
		Prev:         prevAddr,
		IndexRecords: roots,
	}

	if err := t.db.CommitFooter(footerAddr.Value(), newFooter); !err.IsOk() {
		return result.Err[database.Footer](err.Error())
	}

	t.log.Info("committed", "generation", newFooter.Generation, "size", newFooter.Size)

	return result.Ok(t.db.GetFooter())
}

// Rollback discards this transaction without publishing a footer. The
// bytes already reserved via AllocRW/Write remain in the file but are
// unreferenced by any committed footer; the next transaction's cursor
// continues from the last *committed* size, so they are silently
// overwritten (spec.md §4.E).
func (t *Transaction) Rollback() {
	t.mustBeOpen()
	t.log.Info("rolled back", "discarded_bytes", t.cursor-t.db.GetFooter().Size)
	t.release()
}

func (t *Transaction) release() {
	t.open = false
	t.db.ReleaseWriteLock()
}
