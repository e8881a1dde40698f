package result_test

import (
	"testing"

	"github.com/orizon-lang/pstore/perrors"
	"github.com/orizon-lang/pstore/result"
)

func TestAndThenPropagatesOk(t *testing.T) {
	r := result.Ok[uint64](7)

	double := func(v uint64) result.Result[uint64] { return result.Ok(v * 2) }

	got := result.AndThen(r, double)
	if !got.IsOk() || got.Value() != 14 {
		t.Fatalf("expected Ok(14), got %+v", got)
	}
}

func TestAndThenPropagatesError(t *testing.T) {
	wantErr := perrors.New(perrors.CategoryImporter, perrors.UnexpectedNumber, "")
	r := result.Err[uint64](wantErr)

	called := false
	f := func(v uint64) result.Result[uint64] {
		called = true

		return result.Ok(v)
	}

	got := result.AndThen(r, f)
	if called {
		t.Fatalf("f must not be invoked when the input result is an error")
	}

	if got.IsOk() {
		t.Fatalf("expected an error result")
	}

	if got.Error().Kind != perrors.UnexpectedNumber {
		t.Fatalf("expected UnexpectedNumber, got %v", got.Error().Kind)
	}
}

func TestAndThen2AppliesPairPositionally(t *testing.T) {
	r := result.Ok(result.Pair[int, string]{A: 3, B: "x"})

	got := result.AndThen2(r, func(a int, b string) result.Result[string] {
		out := ""
		for i := 0; i < a; i++ {
			out += b
		}

		return result.Ok(out)
	})

	if got.Value() != "xxx" {
		t.Fatalf("expected xxx, got %q", got.Value())
	}
}

func TestValuePanicsOnErrorResult(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Value() to panic on an error result")
		}
	}()

	r := result.Err[int](perrors.New(perrors.CategoryStore, perrors.StoreFull, ""))
	_ = r.Value()
}

func TestEqualResult(t *testing.T) {
	a := result.Ok(5)
	b := result.Ok(5)

	if !result.EqualResult(a, b) {
		t.Fatalf("expected equal results")
	}

	e1 := result.Err[int](perrors.New(perrors.CategoryStore, perrors.StoreFull, ""))
	e2 := result.Err[int](perrors.New(perrors.CategoryStore, perrors.StoreFull, ""))

	if !result.EqualResult(e1, e2) {
		t.Fatalf("expected equal error results")
	}
}
