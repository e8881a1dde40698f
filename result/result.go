// Package result implements Result[T], the value/error carrier used by
// pstore's pure value layers (trie walks, address arithmetic, indirect-string
// resolution) and, wrapping perrors.Error, by its systemic layers (mapping,
// file I/O, CRC validation) as well.
//
// Go has no tagged-union storage the way the source language does, so the
// "exactly one live variant" invariant (spec §4.H) is enforced structurally:
// Result[T] carries both a value and an *perrors.Error, but Value() panics if
// the result holds an error and Error() returns nil if it holds a value —
// there is no way to observe a value that was never set.
package result

import "github.com/orizon-lang/pstore/perrors"

// Result holds either a T or a *perrors.Error, never both meaningfully.
type Result[T any] struct {
	value T
	err   *perrors.Error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Err wraps a failure. Passing a nil err is a programmer error: callers must
// construct a perrors.Error via perrors.New/perrors.Wrap.
func Err[T any](err *perrors.Error) Result[T] {
	if err == nil {
		panic("result.Err: nil *perrors.Error")
	}

	return Result[T]{err: err}
}

// IsOk reports whether the result holds a value rather than an error.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the held value. Callers must check IsOk first; calling
// Value on an error result is a programmer error, not a recoverable one, so
// it panics rather than returning a zero value silently.
func (r Result[T]) Value() T {
	if r.err != nil {
		panic("result.Result.Value: result holds an error: " + r.err.Error())
	}

	return r.value
}

// Error returns the held error, or nil if the result holds a value.
func (r Result[T]) Error() *perrors.Error { return r.err }

// AndThen is the monadic bind: if r is an error it is propagated unchanged
// (re-wrapped around U); otherwise f is applied to the held value.
func AndThen[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}

	return f(r.value)
}

// Pair is the two-element tuple used by AndThen2, the N-ary bind form for
// functions of two arguments (spec §9: "expose two explicit methods" rather
// than a single overloaded operator — this is the tuple-applied one).
type Pair[A, B any] struct {
	A A
	B B
}

// Triple is the three-element counterpart to Pair.
type Triple[A, B, C any] struct {
	A A
	B B
	C C
}

// AndThen2 applies f to the two fields of a Pair, positionally, the way
// error_or_n<Args...>'s operator>>= applies a tuple to a function (spec §4.H,
// §9). It exists as an explicit method rather than variadic machinery.
func AndThen2[A, B, U any](r Result[Pair[A, B]], f func(A, B) Result[U]) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}

	return f(r.value.A, r.value.B)
}

// AndThen3 is AndThen2's three-argument counterpart.
func AndThen3[A, B, C, U any](r Result[Triple[A, B, C]], f func(A, B, C) Result[U]) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}

	return f(r.value.A, r.value.B, r.value.C)
}

// Map transforms a held value without the possibility of failure, useful
// when composing with AndThen chains.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}

	return Ok(f(r.value))
}

// Equal reports whether r holds a value equal to v.
func Equal[T comparable](r Result[T], v T) bool {
	return r.err == nil && r.value == v
}

// EqualResult reports whether two results are equal: either both hold equal
// values, or both hold errors of the same category and kind.
func EqualResult[T comparable](a, b Result[T]) bool {
	if (a.err == nil) != (b.err == nil) {
		return false
	}

	if a.err != nil {
		return a.err.Category == b.err.Category && a.err.Kind == b.err.Kind
	}

	return a.value == b.value
}

// EqualKind reports whether r holds an error of the given kind.
func EqualKind[T any](r Result[T], kind perrors.Kind) bool {
	return r.err != nil && r.err.Kind == kind
}
