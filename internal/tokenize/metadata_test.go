package tokenize_test

import (
	"testing"

	"github.com/delfador0x42/amaranthine/internal/tokenize"
	"github.com/google/go-cmp/cmp"
)

func Test_ParseMetadata_Full_Set_When_Invoked(t *testing.T) {
	t.Parallel()

	body := "[tags: FFI, Packed, ffi]\n" +
		"[source: src/lib.rs:42]\n" +
		"[confidence: 0.8]\n" +
		"[links: rust:0 abi:2]\n" +
		"[owner: alice]\n" +
		"always use packed structs for FFI\nsecond line"

	meta, rest := tokenize.ParseMetadata(body)

	wantTags := []string{"ffi", "packed"}
	if diff := cmp.Diff(wantTags, meta.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	if meta.SourcePath != "src/lib.rs" || meta.SourceLine != 42 {
		t.Fatalf("source = %q:%d, want src/lib.rs:42", meta.SourcePath, meta.SourceLine)
	}

	if meta.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", meta.Confidence)
	}

	wantLinks := []tokenize.Link{{Topic: "rust", Index: 0}, {Topic: "abi", Index: 2}}
	if diff := cmp.Diff(wantLinks, meta.Links); diff != "" {
		t.Fatalf("links mismatch (-want +got):\n%s", diff)
	}

	wantPassthrough := []string{"[owner: alice]"}
	if diff := cmp.Diff(wantPassthrough, meta.Passthrough); diff != "" {
		t.Fatalf("passthrough mismatch (-want +got):\n%s", diff)
	}

	wantRest := "always use packed structs for FFI\nsecond line"
	if rest != wantRest {
		t.Fatalf("rest = %q, want %q", rest, wantRest)
	}
}

func Test_ParseMetadata_No_Metadata_When_Invoked(t *testing.T) {
	t.Parallel()

	body := "just a plain body\nwith two lines"
	meta, rest := tokenize.ParseMetadata(body)

	if meta.Confidence != tokenize.DefaultConfidence {
		t.Fatalf("confidence = %v, want default %v", meta.Confidence, tokenize.DefaultConfidence)
	}

	if rest != body {
		t.Fatalf("rest = %q, want unchanged body %q", rest, body)
	}
}

func Test_ParseMetadata_Confidence_Clamped_When_Invoked(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"[confidence: 2.0]\nbody":  1.0,
		"[confidence: -1]\nbody":   0.0,
		"[confidence: nonsense]\nbody": tokenize.DefaultConfidence,
	}

	for body, want := range cases {
		meta, _ := tokenize.ParseMetadata(body)
		if meta.Confidence != want {
			t.Fatalf("ParseMetadata(%q).Confidence = %v, want %v", body, meta.Confidence, want)
		}
	}
}
