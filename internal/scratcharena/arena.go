// Package scratcharena implements a bump allocator over one reusable byte
// buffer: Alloc hands out a sub-slice and advances a cursor, Reset rewinds
// the cursor to zero without freeing the backing array. index.Trie.Flush
// uses one per call to stage every node envelope in a subtree flush
// without round-tripping through the Go heap allocator per node.
//
// Grounded on the teacher's internal/allocator ArenaAllocatorImpl
// (bump-pointer allocation into a pre-sized buffer, reset instead of
// per-allocation free), adapted from unsafe.Pointer arithmetic to plain
// []byte slicing — pstore never needs raw pointers, since every
// collaborator already speaks in byte slices and Addresses.
package scratcharena

// Arena is a single-writer bump allocator. It is not safe for concurrent
// use; callers that flush a trie from multiple goroutines must use one
// Arena per goroutine.
type Arena struct {
	buf     []byte
	current int
}

// New returns an Arena with an initial capacity hint; it grows past that
// hint like a normal slice append, it just never shrinks back.
func New(capacityHint int) *Arena {
	return &Arena{buf: make([]byte, 0, capacityHint)}
}

// Alloc returns a zeroed size-byte slice carved from the arena's backing
// buffer, growing it if necessary. The returned slice is only valid until
// the next Reset.
func (a *Arena) Alloc(size int) []byte {
	needed := a.current + size
	if needed > cap(a.buf) {
		grown := make([]byte, needed, needed*2)
		copy(grown, a.buf[:a.current])
		a.buf = grown[:a.current]
	}

	a.buf = a.buf[:needed]
	out := a.buf[a.current:needed]
	clear(out)
	a.current = needed

	return out
}

// Reset rewinds the arena to empty, retaining its backing array for the
// next round of Alloc calls.
func (a *Arena) Reset() {
	a.current = 0
	a.buf = a.buf[:0]
}

// Len returns the number of bytes currently allocated from the arena.
func (a *Arena) Len() int { return a.current }
