package rank_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/delfador0x42/amaranthine/internal/corpus"
	"github.com/delfador0x42/amaranthine/internal/datalog"
	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/rank"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

func buildReader(t *testing.T, entries [][2]string) *index.Reader {
	t.Helper()

	dir := t.TempDir()
	l, err := datalog.Open(filepath.Join(dir, "data.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i, e := range entries {
		if _, err := l.AppendEntry(e[0], []byte(e[1]), int32(i)); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
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

	return r
}

func Test_Search_Ranks_Matching_Entry_First_When_Invoked(t *testing.T) {
	t.Parallel()

	r := buildReader(t, [][2]string{
		{"rust", "ownership and borrowing rules prevent data races"},
		{"go", "goroutines and channels make concurrency manageable"},
	})

	hits := rank.Search(r, tokenize.TokenizeQuery("goroutines channels"), rank.ModeAuto, 10)
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].EntryID != 1 {
		t.Fatalf("top hit = entry %d, want 1", hits[0].EntryID)
	}
}

func Test_Search_And_Falls_Back_To_Or_When_No_Entry_Has_All_Terms(t *testing.T) {
	t.Parallel()

	r := buildReader(t, [][2]string{
		{"rust", "ownership rules"},
		{"go", "channel concurrency"},
	})

	hits := rank.Search(r, []string{"ownership", "channel"}, rank.ModeAuto, 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 (OR fallback)", len(hits))
	}
}

func Test_Search_And_Mode_Returns_Nothing_Without_Fallback_When_Invoked(t *testing.T) {
	t.Parallel()

	r := buildReader(t, [][2]string{
		{"rust", "ownership rules"},
		{"go", "channel concurrency"},
	})

	hits := rank.Search(r, []string{"ownership", "channel"}, rank.ModeAnd, 10)
	if len(hits) != 0 {
		t.Fatalf("got %d hits, want 0 under strict AND", len(hits))
	}
}

func Test_Search_Empty_Terms_Returns_No_Hits_When_Invoked(t *testing.T) {
	t.Parallel()

	r := buildReader(t, [][2]string{{"go", "body text"}})

	if hits := rank.Search(r, nil, rank.ModeAuto, 10); hits != nil {
		t.Fatalf("expected nil hits, got %v", hits)
	}
}

func Test_Search_Tag_Boost_Raises_Score_Over_Plain_Mention_When_Invoked(t *testing.T) {
	t.Parallel()

	r := buildReader(t, [][2]string{
		{"rust", "[tags: ffi]\nsystems programming notes unrelated body text padding words here"},
		{"go", "mentions ffi only once in passing within a much longer unrelated discussion padding words"},
	})

	hits := rank.Search(r, []string{"ffi"}, rank.ModeOr, 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].EntryID != 0 {
		t.Fatalf("expected tagged entry 0 to outrank plain mention, got top=%d", hits[0].EntryID)
	}
}
