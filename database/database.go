// Package database implements the file prologue, generation chain,
// transaction commit, and crash recovery spec.md §4.D describes: Database
// owns a Storage plus the cached decoded header and the current footer.
package database

import (
	"encoding/binary"
	"hash/crc32"
	"sync"
	"sync/atomic"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/config"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/plog"
	"github.com/orizon-lang/pstore/region"
	"github.com/orizon-lang/pstore/result"
	"github.com/orizon-lang/pstore/storage"
	"github.com/orizon-lang/pstore/watch"
)

// pathed is implemented by region.File implementations backed by a real
// path on disk (osfile.File); region.MemoryFile does not implement it.
type pathed interface {
	Path() string
}

// IndexKind names one of the four HAMT roots a footer records (spec.md's
// "write, digest, ticket, name", fleshed out by SPEC_FULL.md §3).
type IndexKind int

const (
	WriteIndex IndexKind = iota
	DigestIndex
	TicketIndex
	NameIndex
	indexKindCount
)

const (
	magic         = "PSTOREv1"
	footerSig     = "PSFOOTER"
	headerVersion = uint16(1)

	// headerSize is the on-disk size of Header: 8 (magic) + 2 (version) +
	// 16 (uuid) + 8 (footer_head) + 6 padding, rounded to a clean 8-byte
	// boundary.
	headerSize = 40

	// footerSize is the on-disk size of Footer: 8 (signature) + 8
	// (generation) + 8 (size) + 8 (prev) + 8*indexKindCount (index_records)
	// + 4 (crc).
	footerSize = 8 + 8 + 8 + 8 + 8*int(indexKindCount) + 4
)

// Header is the file prologue (spec.md §6). It is read and written at
// address.Null (offset 0 of segment 0): that address is reserved as the
// "no address" sentinel, and the header occupies exactly that position.
type Header struct {
	Magic      [8]byte
	Version    uint16
	UUID       [16]byte
	FooterHead address.Address
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.Version)
	copy(buf[10:26], h.UUID[:])
	binary.LittleEndian.PutUint64(buf[26:34], h.FooterHead.Raw())

	return buf
}

func decodeHeader(buf []byte) Header {
	var h Header
	copy(h.Magic[:], buf[0:8])
	h.Version = binary.LittleEndian.Uint16(buf[8:10])
	copy(h.UUID[:], buf[10:26])
	h.FooterHead = address.FromRaw(binary.LittleEndian.Uint64(buf[26:34]))

	return h
}

// Footer is the per-generation trailer ending a committed transaction
// (spec.md §6). Footers form a singly-linked chain backward via Prev.
type Footer struct {
	Signature    [8]byte
	Generation   uint64
	Size         uint64
	Prev         address.Address
	IndexRecords [indexKindCount]address.Address
	CRC          uint32
}

func (f Footer) encodeForCRC() []byte {
	buf := make([]byte, footerSize-4)
	copy(buf[0:8], f.Signature[:])
	binary.LittleEndian.PutUint64(buf[8:16], f.Generation)
	binary.LittleEndian.PutUint64(buf[16:24], f.Size)
	binary.LittleEndian.PutUint64(buf[24:32], f.Prev.Raw())

	off := 32
	for _, r := range f.IndexRecords {
		binary.LittleEndian.PutUint64(buf[off:off+8], r.Raw())
		off += 8
	}

	return buf
}

func (f Footer) encode() []byte {
	body := f.encodeForCRC()
	buf := make([]byte, footerSize)
	copy(buf, body)
	binary.LittleEndian.PutUint32(buf[footerSize-4:], f.CRC)

	return buf
}

func decodeFooter(buf []byte) Footer {
	var f Footer
	copy(f.Signature[:], buf[0:8])
	f.Generation = binary.LittleEndian.Uint64(buf[8:16])
	f.Size = binary.LittleEndian.Uint64(buf[16:24])
	f.Prev = address.FromRaw(binary.LittleEndian.Uint64(buf[24:32]))

	off := 32
	for i := range f.IndexRecords {
		f.IndexRecords[i] = address.FromRaw(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}

	f.CRC = binary.LittleEndian.Uint32(buf[footerSize-4:])

	return f
}

func computeCRC(f Footer) uint32 {
	return crc32.ChecksumIEEE(f.encodeForCRC())
}

// Database owns a Storage plus the cached decoded header and current
// footer. At most one Transaction may be open on a Database at a time
// (txMu below); readers never block on it.
type Database struct {
	st     *storage.Storage
	codec  address.Codec
	cfg    config.Config
	log    plog.Logger
	header Header

	mu     sync.RWMutex // guards footer (swung atomically at commit)
	footer Footer

	txMu       sync.Mutex // serializes Transaction.Begin (spec §5 writer exclusion)
	vacuumMode atomic.Bool

	readOnly atomic.Bool // set true after a commit failure (spec §7)
}

// Open validates cfg, opens a Storage over file via factory, and either
// initializes a fresh header/footer (empty file) or walks the footer chain
// and validates CRCs (existing file), falling back to the previous
// generation on a corrupt tail footer (spec.md §4.D, §7).
func Open(file region.File, factory region.Factory, cfg config.Config, log plog.Logger) result.Result[*Database] {
	if log == nil {
		log = plog.Discard
	}

	validated := cfg.Validate()
	if !validated.IsOk() {
		return result.Err[*Database](validated.Error())
	}

	st := storage.Open(file, factory, cfg.Sizes())
	if !st.IsOk() {
		return result.Err[*Database](st.Error())
	}

	db := &Database{
		st:    st.Value(),
		codec: st.Value().Codec(),
		cfg:   cfg,
		log:   log.With("component", "database"),
	}
	db.st.AlwaysSpanning = cfg.AlwaysSpanning
	db.vacuumMode.Store(cfg.VacuumMode)

	length, err := file.Length()
	if err != nil {
		return result.Err[*Database](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
	}

	if length == 0 {
		if r := db.initializeEmpty(); !r.IsOk() {
			return result.Err[*Database](r.Error())
		}

		return result.Ok(db)
	}

	if r := db.openExisting(length); !r.IsOk() {
		return result.Err[*Database](r.Error())
	}

	return result.Ok(db)
}

func (db *Database) initializeEmpty() result.Result[struct{}] {
	if !db.st.MapBytes(uint64(headerSize)).IsOk() {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"failed to map header segment"))
	}

	footer := Footer{Size: uint64(headerSize), Prev: address.Null}
	copy(footer.Signature[:], footerSig)

	for i := range footer.IndexRecords {
		footer.IndexRecords[i] = address.Null
	}

	footer.CRC = computeCRC(footer)

	// The very first footer has no prior allocation to append after; it
	// is written at the header's own trailing bytes conceptually, but for
	// this implementation an empty database simply has no footer on disk
	// yet until the first transaction commits. footer_head stays Null and
	// GetFooter returns the in-memory generation-0 footer until then.
	header := Header{Version: headerVersion, FooterHead: address.Null}
	copy(header.Magic[:], magic)

	if !db.st.CopyTo(address.Null, header.encode()).IsOk() {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"failed to write initial header"))
	}

	db.header = header
	db.footer = footer

	return result.Ok(struct{}{})
}

func (db *Database) openExisting(length uint64) result.Result[struct{}] {
	if !db.st.MapBytes(length).IsOk() {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"failed to map existing file"))
	}

	headerBuf := make([]byte, headerSize)
	if r := db.st.Copy(address.Null, uint64(headerSize), headerBuf); !r.IsOk() {
		return result.Err[struct{}](r.Error())
	}

	header := decodeHeader(headerBuf)
	if string(header.Magic[:]) != magic {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
			"bad magic in file header"))
	}

	if header.Version != headerVersion {
		return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.UnsupportedVersion,
			"unsupported header version"))
	}

	db.header = header

	if header.FooterHead.IsNull() {
		// Header written but no generation ever committed (process died
		// between initializeEmpty and the first commit).
		footer := Footer{Size: uint64(headerSize), Prev: address.Null}
		copy(footer.Signature[:], footerSig)
		footer.CRC = computeCRC(footer)
		db.footer = footer

		return result.Ok(struct{}{})
	}

	return db.walkFooterChain(header.FooterHead)
}

// walkFooterChain reads the footer at addr; if its CRC is invalid it logs
// BadFooterCrc and rewinds to Prev, per spec.md §7. If the chain is
// entirely invalid, open fails with CorruptHeader.
func (db *Database) walkFooterChain(addr address.Address) result.Result[struct{}] {
	for {
		if addr.IsNull() {
			return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
				"no valid footer found in chain"))
		}

		buf := make([]byte, footerSize)
		if r := db.st.Copy(addr, uint64(footerSize), buf); !r.IsOk() {
			return result.Err[struct{}](r.Error())
		}

		footer := decodeFooter(buf)
		if string(footer.Signature[:]) != footerSig {
			return result.Err[struct{}](perrors.New(perrors.CategoryStore, perrors.CorruptHeader,
				"bad footer signature"))
		}

		if computeCRC(footer) != footer.CRC {
			db.log.Warn("footer crc mismatch, rewinding to previous generation",
				"generation", footer.Generation, "addr", addr.String())

			addr = footer.Prev

			continue
		}

		db.footer = footer

		return result.Ok(struct{}{})
	}
}

// GetFooter returns the current committed footer.
func (db *Database) GetFooter() Footer {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.footer
}

// FooterHeadAddress returns the Address of the currently committed
// footer (address.Null if no generation has committed yet), the value a
// new footer must record as its Prev.
func (db *Database) FooterHeadAddress() address.Address {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.header.FooterHead
}

// GetIndexRoot returns the root Address of kind's HAMT in the current
// footer (address.Null if that index has never been written).
func (db *Database) GetIndexRoot(kind IndexKind) address.Address {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.footer.IndexRecords[kind]
}

// At returns a read view of size bytes starting at addr. Within one
// region it aliases mapped memory directly (spec.md §4.D's "handle whose
// lifetime is bound to the database"); a spanning request instead returns
// an owned copy, transparently, via Storage.Copy.
func (db *Database) At(addr address.Address, size uint64) result.Result[[]byte] {
	if !db.st.RequestSpansRegions(addr, size) {
		return result.Ok(db.st.AddressToPointer(addr)[:size])
	}

	buf := make([]byte, size)
	if r := db.st.Copy(addr, size, buf); !r.IsOk() {
		return result.Err[[]byte](r.Error())
	}

	return result.Ok(buf)
}

// VacuumMode reports the advisory flag read by the external GC
// collaborator (spec.md §4.D).
func (db *Database) VacuumMode() bool { return db.vacuumMode.Load() }

// SetVacuumMode updates the advisory flag, logging the transition.
func (db *Database) SetVacuumMode(mode bool) {
	if db.vacuumMode.Swap(mode) != mode {
		db.log.Info("vacuum mode changed", "mode", mode)
	}
}

// ReadOnly reports whether a prior commit failure has left the database
// refusing further writes (spec.md §7).
func (db *Database) ReadOnly() bool { return db.readOnly.Load() }

// Storage exposes the underlying Storage for Transaction and index, which
// live in separate packages and need direct SAT/region access.
func (db *Database) Storage() *storage.Storage { return db.st }

// Codec exposes the Address codec Transaction and index must share.
func (db *Database) Codec() address.Codec { return db.codec }

// Logger returns a field-tagged Logger for the given component name.
func (db *Database) Logger(component string) plog.Logger { return db.log.With("component", component) }

// AcquireWriteLock blocks until no other Transaction is open, enforcing
// spec.md §5's single-writer rule.
func (db *Database) AcquireWriteLock() { db.txMu.Lock() }

// TryAcquireWriteLock attempts the same lock without blocking, returning
// false (AlreadyOpen, via the caller) if another transaction is open.
func (db *Database) TryAcquireWriteLock() bool { return db.txMu.TryLock() }

// ReleaseWriteLock releases the lock acquired by AcquireWriteLock or a
// successful TryAcquireWriteLock.
func (db *Database) ReleaseWriteLock() { db.txMu.Unlock() }

// CommitFooter publishes newFooter as the current generation: it computes
// the CRC, appends the encoded footer bytes via the transaction's own
// allocation (already reserved by the caller at reservedAt), flushes the
// backing file, then swings header.FooterHead — the single linearization
// point between transactions (spec.md §4.E, §7). The footer body is
// durable (Sync) before the header pointer update, so a crash between the
// two leaves the previous generation valid.
func (db *Database) CommitFooter(reservedAt address.Address, newFooter Footer) result.Result[struct{}] {
	copy(newFooter.Signature[:], footerSig)
	newFooter.CRC = computeCRC(newFooter)

	if r := db.st.CopyTo(reservedAt, newFooter.encode()); !r.IsOk() {
		db.readOnly.Store(true)
		db.log.Error("failed to write footer body", "error", r.Error())

		return result.Err[struct{}](r.Error())
	}

	if err := db.st.SyncFile(); err != nil {
		db.readOnly.Store(true)
		db.log.Error("failed to fsync footer before header swing", "error", err)

		return result.Err[struct{}](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
	}

	newHeader := db.header
	newHeader.FooterHead = reservedAt

	if r := db.st.CopyTo(address.Null, newHeader.encode()); !r.IsOk() {
		db.readOnly.Store(true)
		db.log.Error("failed to swing header footer pointer", "error", r.Error())

		return result.Err[struct{}](r.Error())
	}

	if err := db.st.SyncFile(); err != nil {
		db.readOnly.Store(true)

		return result.Err[struct{}](perrors.Wrap(perrors.CategoryIO, perrors.IOOther, err))
	}

	db.mu.Lock()
	db.header = newHeader
	db.footer = newFooter
	db.mu.Unlock()

	return result.Ok(struct{}{})
}

// Watch starts an fsnotify-backed feed of write events on this database's
// backing file (SPEC_FULL.md §5); package watch describes which events are
// forwarded. Returns an error if the backing file was not opened from a
// real path (e.g. a region.MemoryFile in tests).
func (db *Database) Watch() (*watch.Watcher, error) {
	p, ok := db.st.File().(pathed)
	if !ok {
		return nil, perrors.New(perrors.CategoryStore, perrors.Unsupported,
			"Watch requires a database opened from a real file path")
	}

	return watch.Watch(p.Path())
}

// HeaderSize is the fixed on-disk size of Header, exported so Transaction
// knows where the very first allocation may begin.
const HeaderSize = headerSize

// FooterSize is the fixed on-disk size of an encoded Footer.
const FooterSize = footerSize

// IndexKindCount is the number of IndexKind values (4: write, digest,
// ticket, name).
const IndexKindCount = int(indexKindCount)
