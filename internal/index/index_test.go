package index_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/delfador0x42/amaranthine/internal/corpus"
	"github.com/delfador0x42/amaranthine/internal/datalog"
	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/record"
)

func buildTestIndex(t *testing.T) (*index.Reader, *corpus.Snapshot) {
	t.Helper()

	dir := t.TempDir()
	l, err := datalog.Open(filepath.Join(dir, "data.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := l.AppendEntry("rust", []byte("[tags: ffi]\nalways pack structs for ffi calls"), 10); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if _, err := l.AppendEntry("go", []byte("goroutines are cheap but not free"), 20); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	c := corpus.New(l)
	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	buf, err := index.Build(snap)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(dir, "index.bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := index.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	return r, snap
}

func Test_Build_Then_Open_Round_Trips_Header_When_Invoked(t *testing.T) {
	t.Parallel()

	r, snap := buildTestIndex(t)

	if r.EntryCount() != len(snap.Entries) {
		t.Fatalf("EntryCount = %d, want %d", r.EntryCount(), len(snap.Entries))
	}
}

func Test_TermPostings_Finds_Indexed_Term_When_Invoked(t *testing.T) {
	t.Parallel()

	r, _ := buildTestIndex(t)

	postings, ok := r.TermPostings(record.HashTerm("goroutines"))
	if !ok {
		t.Fatal("expected postings for 'goroutines'")
	}
	if len(postings) != 1 {
		t.Fatalf("got %d postings, want 1", len(postings))
	}
	if postings[0].EntryID != 1 {
		t.Fatalf("EntryID = %d, want 1", postings[0].EntryID)
	}
}

func Test_TermPostings_Missing_Term_Returns_False_When_Invoked(t *testing.T) {
	t.Parallel()

	r, _ := buildTestIndex(t)

	if _, ok := r.TermPostings(record.HashTerm("nonexistentzzz")); ok {
		t.Fatal("expected no postings for an unindexed term")
	}
}

func Test_Posting_Tag_Bit_Set_For_Tagged_Term_When_Invoked(t *testing.T) {
	t.Parallel()

	r, _ := buildTestIndex(t)

	postings, ok := r.TermPostings(record.HashTerm("ffi"))
	if !ok {
		t.Fatal("expected postings for 'ffi'")
	}

	found := false
	for _, p := range postings {
		if p.EntryID == 0 {
			found = true
			if !p.IsTag {
				t.Fatal("expected IsTag set for entry 0's ffi posting")
			}
		}
	}
	if !found {
		t.Fatal("entry 0 missing from ffi postings")
	}
}

func Test_IsStale_Detects_Mtime_Change_When_Invoked(t *testing.T) {
	t.Parallel()

	r, snap := buildTestIndex(t)

	if r.IsStale(snap.LogMTime) {
		t.Fatal("expected not stale against the mtime it was built with")
	}

	if !r.IsStale(snap.LogMTime.Add(time.Second)) {
		t.Fatal("expected stale against a different mtime")
	}
}

func Test_TopicName_And_SourcePath_Resolve_When_Invoked(t *testing.T) {
	t.Parallel()

	r, _ := buildTestIndex(t)

	meta := r.EntryMeta(0)
	name := r.TopicName(meta.TopicID)
	if name != "go" && name != "rust" {
		t.Fatalf("unexpected topic name %q", name)
	}
}
