package record_test

import (
	"testing"

	"github.com/delfador0x42/amaranthine/internal/record"
)

func Test_HashTerm_Never_Zero_When_Invoked(t *testing.T) {
	t.Parallel()

	// This particular input is not special; the point is that hash_term
	// is exercised across a spread of terms and never returns 0.
	terms := []string{"a", "rust", "ffi", "http", "", "zzzzzzzzzzzzzzzzzzzzzzzzz"}

	for _, term := range terms {
		got := record.HashTerm(term)
		if got == 0 {
			t.Fatalf("HashTerm(%q) = 0, want nonzero sentinel remap", term)
		}
	}
}

func Test_HashTerm_Is_Case_Insensitive_When_Invoked(t *testing.T) {
	t.Parallel()

	a := record.HashTerm("Rust")
	b := record.HashTerm("rust")
	c := record.HashTerm("RUST")

	if a != b || b != c {
		t.Fatalf("HashTerm is case sensitive: %d %d %d", a, b, c)
	}
}

func Test_NextPow2_When_Invoked(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{
		0:   1,
		1:   1,
		2:   2,
		3:   4,
		5:   8,
		16:  16,
		17:  32,
		100: 128,
	}

	for in, want := range cases {
		if got := record.NextPow2(in); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func Test_AlignUp_When_Invoked(t *testing.T) {
	t.Parallel()

	cases := map[uint32]uint32{
		0: 0,
		1: 4,
		3: 4,
		4: 4,
		5: 8,
	}

	for in, want := range cases {
		if got := record.AlignUp(in); got != want {
			t.Fatalf("AlignUp(%d) = %d, want %d", in, got, want)
		}
	}
}

func Test_F32_RoundTrip_When_Invoked(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4)
	record.PutF32(buf, 0.6931472)

	if got := record.F32(buf); got != 0.6931472 {
		t.Fatalf("F32 roundtrip = %v, want %v", got, 0.6931472)
	}
}
