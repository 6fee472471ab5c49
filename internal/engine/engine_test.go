package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/rank"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	e, err := engine.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return e
}

func Test_Store_Then_Search_Finds_Entry_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()

	opts := tokenize.StoreOptions{Tags: []string{"ffi"}}
	if _, err := e.Store(ctx, "rust", "always use packed structs for FFI", opts, 10); err != nil {
		t.Fatalf("Store: %v", err)
	}

	r, err := e.OpenIndex()
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer r.Close()

	hits := rank.Search(r, tokenize.TokenizeQuery("ffi"), rank.ModeAuto, 10)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}

func Test_Store_Duplicate_Returns_Warning_But_Writes_Both_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()

	first, err := e.Store(ctx, "infra", "use flock for write serialization", tokenize.StoreOptions{}, 1)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	result, err := e.Store(ctx, "infra", "use flock for write serialization today", tokenize.StoreOptions{}, 2)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if result.Warning == nil {
		t.Fatal("expected a duplicate warning on the second, near-identical store")
	}

	// Both stores contain "flock", so with two entries its baked idf is
	// log((2-2+0.5)/(2+0.5)), which is negative and clamped to 0. Both
	// entries therefore score exactly 0 regardless of body length, and the
	// tie-break (newer timestamp wins) puts the second store (ts 2) ahead
	// of the first (ts 1).
	r, err := e.OpenIndex()
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer r.Close()

	hits := rank.Search(r, tokenize.TokenizeQuery("flock"), rank.ModeAuto, 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits for \"flock\", want 2", len(hits))
	}

	if got := int64(r.EntryMeta(hits[0].EntryID).LogOffset); got != result.Offset {
		t.Errorf("first hit offset = %d, want %d (equal scores, newer entry first)",
			got, result.Offset)
	}

	if got := int64(r.EntryMeta(hits[1].EntryID).LogOffset); got != first.Offset {
		t.Errorf("second hit offset = %d, want %d", got, first.Offset)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("got %d live entries, want 2 (duplicate warning must not block the write)", len(snap.Entries))
	}
}

func Test_Delete_Removes_Entry_From_Search_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()

	result, err := e.Store(ctx, "go", "goroutines are cheap", tokenize.StoreOptions{}, 1)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := e.Delete(ctx, result.Offset); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Fatalf("got %d live entries, want 0 after delete", len(snap.Entries))
	}
}

func Test_Delete_Unknown_Offset_Returns_NotFound_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	err := e.Delete(context.Background(), 99999)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_Store_Invalid_Topic_Returns_InvalidInput_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	_, err := e.Store(context.Background(), "Not Valid!", "body", tokenize.StoreOptions{}, 1)
	if !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func Test_RenameTopic_Moves_Live_Entries_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()

	if _, err := e.Store(ctx, "old-topic", "some body text here", tokenize.StoreOptions{}, 1); err != nil {
		t.Fatalf("Store: %v", err)
	}

	n, err := e.RenameTopic(ctx, "old-topic", "new-topic")
	if err != nil {
		t.Fatalf("RenameTopic: %v", err)
	}
	if n != 1 {
		t.Fatalf("renamed %d entries, want 1", n)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.ByTopic["old-topic"]) != 0 {
		t.Fatal("expected old-topic to have zero live entries")
	}
	if len(snap.ByTopic["new-topic"]) != 1 {
		t.Fatal("expected new-topic to have one live entry")
	}
}

func Test_Compact_Preserves_Live_Entries_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	ctx := context.Background()

	r1, err := e.Store(ctx, "a", "first entry body", tokenize.StoreOptions{}, 1)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := e.Store(ctx, "a", "second entry body", tokenize.StoreOptions{}, 2); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := e.Delete(ctx, r1.Offset); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := e.Compact(ctx); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("got %d entries after compact, want 1", len(snap.Entries))
	}
}

func Test_Index_Path_Is_Under_Engine_Dir_When_Invoked(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	if filepath.Dir(e.IndexPath()) != e.Dir() {
		t.Fatalf("index path %q not under dir %q", e.IndexPath(), e.Dir())
	}
}
