package digest_test

import (
	"testing"

	"github.com/orizon-lang/pstore/digest"
)

func TestSumIsDeterministic(t *testing.T) {
	a := digest.Sum([]byte("hello"))
	b := digest.Sum([]byte("hello"))

	if a != b {
		t.Fatalf("Sum must be deterministic for equal input")
	}
}

func TestSumDistinguishesInput(t *testing.T) {
	a := digest.Sum([]byte("hello"))
	b := digest.Sum([]byte("world"))

	if a == b {
		t.Fatalf("distinct input must not collide in this test")
	}
}

func TestZeroDigestIsZero(t *testing.T) {
	var d digest.Digest
	if !d.IsZero() {
		t.Fatalf("zero value must report IsZero")
	}

	if digest.Sum([]byte("x")).IsZero() {
		t.Fatalf("a real digest must not report IsZero")
	}
}

func TestStringIsHex(t *testing.T) {
	d := digest.Sum([]byte("hello"))
	s := d.String()

	if len(s) != digest.Size*2 {
		t.Fatalf("expected %d hex chars, got %d", digest.Size*2, len(s))
	}
}
