package perrors_test

import (
	"errors"
	"os"
	"testing"

	"github.com/orizon-lang/pstore/perrors"
)

func TestNewUsesStableMessageWhenEmpty(t *testing.T) {
	e := perrors.New(perrors.CategoryStore, perrors.CorruptHeader, "")
	if e.Message != "corrupt header" {
		t.Fatalf("expected stable default message, got %q", e.Message)
	}
}

func TestWrapPreservesCauseViaUnwrap(t *testing.T) {
	cause := os.ErrNotExist
	e := perrors.Wrap(perrors.CategoryIO, perrors.NotFound, cause)

	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestIsComparesCategoryAndKind(t *testing.T) {
	a := perrors.New(perrors.CategoryStore, perrors.StoreFull, "")
	b := perrors.New(perrors.CategoryStore, perrors.StoreFull, "different message")
	c := perrors.New(perrors.CategoryIO, perrors.IOOther, "")

	if !errors.Is(a, b) {
		t.Fatalf("expected same category/kind errors to match via errors.Is")
	}

	if errors.Is(a, c) {
		t.Fatalf("expected different category/kind errors not to match")
	}
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	e := perrors.New(perrors.CategoryStore, perrors.StoreFull, "")
	withCtx := e.WithContext("segment", 12)

	if e.Context != nil {
		t.Fatalf("WithContext must not mutate the receiver")
	}

	if withCtx.Context["segment"] != 12 {
		t.Fatalf("expected context to carry the attached key")
	}
}
