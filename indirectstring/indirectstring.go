// Package indirectstring implements the content-addressed string pool
// spec.md §4.G describes: an IndirectString is either a pending in-memory
// value or a stored pointer-slot Address whose body lives elsewhere in the
// store, written via a two-phase protocol (pointer first, body second) and
// deduplicated through a HAMT set keyed by body content.
package indirectstring

import (
	"encoding/binary"
	"sync"

	"github.com/orizon-lang/pstore/address"
	"github.com/orizon-lang/pstore/index"
	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"

	"golang.org/x/sync/singleflight"
)

// Reader is the read capability IndirectString needs to resolve a stored
// value back to its bytes.
type Reader interface {
	At(addr address.Address, size uint64) result.Result[[]byte]
}

// Writer is the write capability the Adder needs to reserve and patch the
// pointer slot and body.
type Writer interface {
	AllocRW(size, align uint64) result.Result[address.Address]
	Write(addr address.Address, data []byte) result.Result[struct{}]
}

// IndirectString is either Pending (a borrowed value not yet written) or
// Stored (a database handle plus the Address of its 8-byte pointer
// slot). The zero value is not meaningful; construct via Pending or
// Stored.
type IndirectString struct {
	pending *string
	reader  Reader
	addr    address.Address
}

// NewPending wraps s as a not-yet-written IndirectString.
func NewPending(s string) IndirectString { return IndirectString{pending: &s} }

// NewStored wraps addr, the pointer-slot Address of an already-committed
// IndirectString, resolved lazily through reader.
func NewStored(reader Reader, addr address.Address) IndirectString {
	return IndirectString{reader: reader, addr: addr}
}

// IsPending reports whether this value has not yet been written.
func (s IndirectString) IsPending() bool { return s.pending != nil }

// Address returns the pointer-slot Address of a stored IndirectString. It
// panics if called on a pending value.
func (s IndirectString) Address() address.Address {
	if s.pending != nil {
		panic("indirectstring.IndirectString.Address: value is still pending")
	}

	return s.addr
}

// AsString resolves the value's bytes: immediately for a pending value,
// or by reading the pointer slot then the body for a stored one (spec.md
// §4.G). The body read may span regions; Reader (backed by Storage.Copy)
// handles that transparently, so this never needs to know whether the
// result is a zero-copy view or an owned copy.
func (s IndirectString) AsString() result.Result[string] {
	if s.pending != nil {
		return result.Ok(*s.pending)
	}

	ptrBuf := s.reader.At(s.addr, 8)
	if !ptrBuf.IsOk() {
		return result.Err[string](ptrBuf.Error())
	}

	bodyAddr := address.FromRaw(binary.LittleEndian.Uint64(ptrBuf.Value()))

	lenBuf := s.reader.At(bodyAddr, 8)
	if !lenBuf.IsOk() {
		return result.Err[string](lenBuf.Error())
	}

	length := binary.LittleEndian.Uint64(lenBuf.Value())

	body := s.reader.At(bodyAddr.Add(8), length)
	if !body.IsOk() {
		return result.Err[string](body.Error())
	}

	return result.Ok(string(body.Value()))
}

// Equal reports whether two IndirectStrings have equal bytes, resolving
// either as needed (spec.md §4.G: "equality is bytewise").
func Equal(a, b IndirectString) result.Result[bool] {
	av := a.AsString()
	if !av.IsOk() {
		return result.Err[bool](av.Error())
	}

	bv := b.AsString()
	if !bv.IsOk() {
		return result.Err[bool](bv.Error())
	}

	return result.Ok(av.Value() == bv.Value())
}

// NameIndex is the HAMT set of indirect strings (spec.md §4.G, §4.F): a
// map from body content to the pointer-slot Address that owns it, used
// both for membership ("has this body ever been stored") and for locating
// the existing pointer slot on a duplicate add.
type NameIndex = index.Trie[string, address.Address]

// BodyKeyCodec hashes and compares indirect-string bodies by their raw
// bytes (spec.md §4.G: "hash of IndirectString equals hash of its bytes;
// equality is bytewise").
type BodyKeyCodec struct{}

func (BodyKeyCodec) Hash(k string) uint64 {
	// FNV-1a, matching index.StringKeyCodec: good enough distribution for
	// a 64-way-fanout trie, and keeping one hash family across the
	// module's string-keyed indices avoids a second hash dependency for
	// no behavioral benefit.
	return index.StringKeyCodec{}.Hash(k)
}

func (BodyKeyCodec) Equal(a, b string) bool  { return a == b }
func (BodyKeyCodec) Encode(k string) []byte  { return []byte(k) }
func (BodyKeyCodec) Decode(b []byte) string  { return string(b) }

// AddResult is the outcome of adding one body: the pointer-slot Address
// that now owns it (freshly written, or the one from an earlier add), and
// whether this call actually wrote a new body.
type AddResult struct {
	PointerSlot address.Address
	Inserted    bool
}

// Adder batches writes of many IndirectStrings within one transaction,
// deduplicating via NameIndex before performing the two-phase write
// (spec.md §4.G).
type Adder struct {
	mu    sync.Mutex
	sf    singleflight.Group
	index *NameIndex
}

// NewAdder returns an Adder writing through nameIndex.
func NewAdder(nameIndex *NameIndex) *Adder { return &Adder{index: nameIndex} }

// Add writes body if it has not been seen before in nameIndex, returning
// the existing pointer slot (Inserted == false) otherwise. Safe to call
// from multiple goroutines against the same Adder; the underlying trie
// mutation is serialized.
func (a *Adder) Add(w Writer, body string) result.Result[AddResult] {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.addLocked(w, body)
}

func (a *Adder) addLocked(w Writer, body string) result.Result[AddResult] {
	found := a.index.Find(body)
	if !found.IsOk() {
		return result.Err[AddResult](found.Error())
	}

	if found.Value().Found {
		return result.Ok(AddResult{PointerSlot: found.Value().Value, Inserted: false})
	}

	pointerSlot := w.AllocRW(8, 8)
	if !pointerSlot.IsOk() {
		return result.Err[AddResult](pointerSlot.Error())
	}

	if r := w.Write(pointerSlot.Value(), make([]byte, 8)); !r.IsOk() {
		return result.Err[AddResult](r.Error())
	}

	bodyBytes := []byte(body)
	envelope := make([]byte, 8+len(bodyBytes))
	binary.LittleEndian.PutUint64(envelope[0:8], uint64(len(bodyBytes)))
	copy(envelope[8:], bodyBytes)

	bodyAddr := w.AllocRW(uint64(len(envelope)), 8)
	if !bodyAddr.IsOk() {
		return result.Err[AddResult](bodyAddr.Error())
	}

	if r := w.Write(bodyAddr.Value(), envelope); !r.IsOk() {
		return result.Err[AddResult](r.Error())
	}

	patch := make([]byte, 8)
	binary.LittleEndian.PutUint64(patch, bodyAddr.Value().Raw())

	if r := w.Write(pointerSlot.Value(), patch); !r.IsOk() {
		return result.Err[AddResult](r.Error())
	}

	if r := a.index.Insert(body, pointerSlot.Value()); !r.IsOk() {
		return result.Err[AddResult](r.Error())
	}

	return result.Ok(AddResult{PointerSlot: pointerSlot.Value(), Inserted: true})
}

// AddBatch adds many bodies, one goroutine per body. singleflight
// collapses concurrent adds of the same body into one Add call, and each
// Add (the NameIndex lookup as well as the two-phase write) runs under the
// Adder's mutex, so lookups and writes are both serialized.
func (a *Adder) AddBatch(w Writer, bodies []string) []result.Result[AddResult] {
	results := make([]result.Result[AddResult], len(bodies))

	var wg sync.WaitGroup

	for i, body := range bodies {
		wg.Add(1)

		go func(i int, body string) {
			defer wg.Done()

			v, err, _ := a.sf.Do(body, func() (any, error) {
				r := a.Add(w, body)
				if !r.IsOk() {
					return nil, r.Error()
				}

				return r.Value(), nil
			})

			if err != nil {
				results[i] = result.Err[AddResult](err.(*perrors.Error))

				return
			}

			results[i] = result.Ok(v.(AddResult))
		}(i, body)
	}

	wg.Wait()

	return results
}
