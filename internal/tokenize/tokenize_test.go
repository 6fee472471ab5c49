package tokenize_test

import (
	"testing"

	"github.com/delfador0x42/amaranthine/internal/tokenize"
	"github.com/google/go-cmp/cmp"
)

func Test_Tokenize_CamelCase_When_Invoked(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"HTTPServer":       {"http", "server"},
		"camelCase":        {"camel", "case"},
		"snake_case_value": {"snake", "case", "value"},
		"already lower":    {"already", "lower"},
		"v2beta":           {"beta"}, // "v" and "2" are below MinTermLen
		"XMLHttpRequest":   {"xml", "http", "request"},
	}

	for in, want := range cases {
		got := tokenize.Tokenize(in)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Tokenize(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func Test_Tokenize_Idempotent_When_Invoked(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPServer uses packed structs for FFI",
		"always use flock for write serialization",
		"rebuild_index triggers a full RebuildFromLog pass",
	}

	for _, in := range inputs {
		first := tokenize.Tokenize(in)
		rejoined := ""

		for i, t := range first {
			if i > 0 {
				rejoined += " "
			}

			rejoined += t
		}

		second := tokenize.Tokenize(rejoined)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("Tokenize not idempotent for %q (-first +second):\n%s", in, diff)
		}
	}
}

func Test_Tokenize_Discards_Short_Terms_When_Invoked(t *testing.T) {
	t.Parallel()

	got := tokenize.Tokenize("a b I of it cool")
	want := []string{"of", "it", "cool"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func Test_TokenizeQuery_Filters_Stopwords_When_Invoked(t *testing.T) {
	t.Parallel()

	got := tokenize.TokenizeQuery("what is the best way to use flock")
	want := []string{"best", "way", "use", "flock"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func Test_Tokenize_Unicode_Fallback_When_Invoked(t *testing.T) {
	t.Parallel()

	got := tokenize.Tokenize("café resumé naïve")
	want := []string{"café", "resumé", "naïve"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func Test_TokenizeCount_When_Invoked(t *testing.T) {
	t.Parallel()

	freq := make(map[string]uint32)
	tokenize.TokenizeCount("flock flock always use flock", freq)

	want := map[string]uint32{"flock": 3, "always": 1, "use": 1}

	if diff := cmp.Diff(want, freq); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
