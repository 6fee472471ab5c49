// Package engine is the write coordinator (spec §4.I): it sequences
// sanitization, dedup probing, the append-then-rebuild pipeline, and cache
// invalidation under one lock hold per mutating call.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/delfador0x42/amaranthine/internal/corpus"
	"github.com/delfador0x42/amaranthine/internal/datalog"
	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/record"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// MaxEntriesBeforeCompaction bounds the live entry count the engine will
// accept a new Store against. The index's entry id is a u16 assigned over
// live entries only, so this keeps the id space from overflowing.
// Compaction drops only tombstoned records and leaves the live count
// unchanged, so it does not lift this limit.
const MaxEntriesBeforeCompaction = 65000

// dedupWindow and dedupThreshold are the Jaccard dedup probe's parameters,
// pinned to the values spec.md's design notes call out as "currently
// observed behavior" rather than independently re-derived.
const (
	dedupWindow       = 20
	dedupThreshold    = 0.9
	dedupMinWordLen   = 6
)

var topicPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// DuplicateWarning is a non-blocking signal that a freshly stored entry is
// near-duplicate of a recent entry in the same topic.
type DuplicateWarning struct {
	SimilarToOffset int64
	Similarity      float64
}

// Result is returned by every mutating engine call.
type Result struct {
	Offset  int64
	Warning *DuplicateWarning
}

// Engine coordinates the log, the index file, and the corpus cache for one
// amaranthine directory.
type Engine struct {
	dir       string
	indexPath string
	log       *datalog.Log
	cache     *corpus.Cache
	logger    *zap.Logger
}

// Open returns an Engine rooted at dir, creating the log if absent. logger
// may be nil, in which case zap.NewNop() is used.
func Open(dir string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating dir: %w", datalog.ErrIO, err)
	}

	l, err := datalog.Open(filepath.Join(dir, "data.log"))
	if err != nil {
		return nil, err
	}

	return &Engine{
		dir:       dir,
		indexPath: filepath.Join(dir, "index.bin"),
		log:       l,
		cache:     corpus.New(l),
		logger:    logger,
	}, nil
}

// Dir returns the directory the engine is rooted at.
func (e *Engine) Dir() string { return e.dir }

// IndexPath returns the path of the binary index file this engine
// maintains.
func (e *Engine) IndexPath() string { return e.indexPath }

// Snapshot returns the current corpus snapshot (spec §4.D read path).
func (e *Engine) Snapshot() (*corpus.Snapshot, error) {
	return e.cache.Snapshot()
}

// OpenIndex opens (building first if absent or stale) the binary index for
// querying.
func (e *Engine) OpenIndex() (*index.Reader, error) {
	if _, err := os.Stat(e.indexPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: stat index: %w", datalog.ErrIO, err)
		}

		if err := e.rebuildIndex(); err != nil {
			return nil, err
		}
	}

	r, err := index.Open(e.indexPath)
	if err != nil {
		e.logger.Warn("index open failed, rebuilding", zap.Error(err))

		if err := e.rebuildIndex(); err != nil {
			return nil, err
		}

		return index.Open(e.indexPath)
	}

	snap, err := e.cache.Snapshot()
	if err != nil {
		r.Close()
		return nil, err
	}

	if r.IsStale(snap.LogMTime) {
		r.Close()

		if err := e.rebuildIndex(); err != nil {
			return nil, err
		}

		return index.Open(e.indexPath)
	}

	return r, nil
}

// Store appends a new entry under topic, sanitizing the topic and rendering
// opts into the body's leading metadata lines, then rebuilds the index and
// invalidates the cache (spec §4.I).
func (e *Engine) Store(ctx context.Context, topic string, text string, opts tokenize.StoreOptions, tsMin int32) (*Result, error) {
	clean, err := sanitizeTopic(topic)
	if err != nil {
		return nil, err
	}

	body := tokenize.RenderMetadata(opts, text)

	var result *Result

	err = datalog.WithWriteLock(ctx, e.dir, func() error {
		snap, err := e.cache.Snapshot()
		if err != nil {
			return err
		}

		if len(snap.Entries) >= MaxEntriesBeforeCompaction {
			return fmt.Errorf("%w: %w", ErrIndexFull, ErrInvalidInput)
		}

		warning := probeDuplicate(snap, clean, body)

		offset, err := e.log.AppendEntry(clean, []byte(body), tsMin)
		if err != nil {
			return err
		}

		e.cache.Invalidate()

		if err := e.rebuildIndex(); err != nil {
			return err
		}

		result = &Result{Offset: offset, Warning: warning}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("stored entry", zap.String("topic", clean), zap.Int64("offset", result.Offset))

	return result, nil
}

// Update appends text as a new entry and tombstones the entry at
// targetOffset (spec §4.I: "append new entry + append tombstone for old").
func (e *Engine) Update(ctx context.Context, targetOffset int64, topic, text string, opts tokenize.StoreOptions, tsMin int32) (*Result, error) {
	clean, err := sanitizeTopic(topic)
	if err != nil {
		return nil, err
	}

	body := tokenize.RenderMetadata(opts, text)

	var result *Result

	err = datalog.WithWriteLock(ctx, e.dir, func() error {
		snap, err := e.cache.Snapshot()
		if err != nil {
			return err
		}

		if !offsetIsLiveIn(snap, targetOffset) {
			return fmt.Errorf("%w: entry at offset %d", ErrNotFound, targetOffset)
		}

		if len(snap.Entries) >= MaxEntriesBeforeCompaction {
			return fmt.Errorf("%w: %w", ErrIndexFull, ErrInvalidInput)
		}

		offset, err := e.log.AppendEntry(clean, []byte(body), tsMin)
		if err != nil {
			return err
		}

		if err := e.log.AppendTombstone(targetOffset); err != nil {
			return err
		}

		e.cache.Invalidate()

		if err := e.rebuildIndex(); err != nil {
			return err
		}

		result = &Result{Offset: offset}

		return nil
	})

	return result, err
}

// Delete tombstones the live entry at targetOffset.
func (e *Engine) Delete(ctx context.Context, targetOffset int64) error {
	return datalog.WithWriteLock(ctx, e.dir, func() error {
		if !e.offsetIsLive(targetOffset) {
			return fmt.Errorf("%w: entry at offset %d", ErrNotFound, targetOffset)
		}

		if err := e.log.AppendTombstone(targetOffset); err != nil {
			return err
		}

		e.cache.Invalidate()

		return e.rebuildIndex()
	})
}

// RenameTopic duplicates every live entry under oldTopic to newTopic and
// tombstones the originals (spec §4.I).
func (e *Engine) RenameTopic(ctx context.Context, oldTopic, newTopic string) (int, error) {
	oldClean, err := sanitizeTopic(oldTopic)
	if err != nil {
		return 0, err
	}

	newClean, err := sanitizeTopic(newTopic)
	if err != nil {
		return 0, err
	}

	renamed := 0

	err = datalog.WithWriteLock(ctx, e.dir, func() error {
		snap, err := e.cache.Snapshot()
		if err != nil {
			return err
		}

		ids, ok := snap.ByTopic[oldClean]
		if !ok || len(ids) == 0 {
			return fmt.Errorf("%w: topic %q", ErrNotFound, oldClean)
		}

		for _, id := range ids {
			ent := snap.Entries[id]

			if _, err := e.log.AppendEntry(newClean, []byte(reconstructBody(ent)), ent.TSMin); err != nil {
				return err
			}

			if err := e.log.AppendTombstone(ent.Offset); err != nil {
				return err
			}

			renamed++
		}

		e.cache.Invalidate()

		return e.rebuildIndex()
	})

	return renamed, err
}

// RebuildIndex regenerates index.bin from the current log without
// touching data.log itself — unlike Compact, it renumbers nothing and
// drops no tombstoned bytes. It exists for callers that only suspect the
// index is out of sync with the log (the RPC surface's rebuild_index
// tool) and must not pay Compact's log-rewrite cost or its renumbering
// side effects to recover.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	return datalog.WithWriteLock(ctx, e.dir, func() error {
		e.cache.Invalidate()

		return e.rebuildIndex()
	})
}

// Compact rewrites the log to drop tombstoned entries and rebuilds the
// index against the new, renumbered offsets.
func (e *Engine) Compact(ctx context.Context) error {
	return datalog.WithWriteLock(ctx, e.dir, func() error {
		if err := e.log.Compact(); err != nil {
			return err
		}

		e.cache.Invalidate()

		return e.rebuildIndex()
	})
}

func (e *Engine) offsetIsLive(offset int64) bool {
	snap, err := e.cache.Snapshot()
	if err != nil {
		return false
	}

	return offsetIsLiveIn(snap, offset)
}

func offsetIsLiveIn(snap *corpus.Snapshot, offset int64) bool {
	for _, ent := range snap.Entries {
		if ent.Offset == offset {
			return true
		}
	}

	return false
}

func (e *Engine) rebuildIndex() error {
	snap, err := e.cache.Snapshot()
	if err != nil {
		return err
	}

	buf, err := index.Build(snap)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(e.indexPath, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("%w: writing index: %w", datalog.ErrIO, err)
	}

	return nil
}

// sanitizeTopic trims, lowercases, and validates a topic name against
// spec §4.I step 1: only [a-z0-9-], capped at record.MaxTopicLen bytes.
func sanitizeTopic(topic string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(topic))

	if clean == "" {
		return "", fmt.Errorf("%w: empty topic", ErrInvalidInput)
	}

	if len(clean) > record.MaxTopicLen {
		return "", fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidInput, record.MaxTopicLen)
	}

	if !topicPattern.MatchString(clean) {
		return "", fmt.Errorf("%w: topic %q contains disallowed characters", ErrInvalidInput, topic)
	}

	return clean, nil
}

// probeDuplicate compares the new body's long-word set against the last
// dedupWindow live entries in topic, by Jaccard similarity on words of at
// least dedupMinWordLen characters (spec §4.I step 3).
func probeDuplicate(snap *corpus.Snapshot, topic, body string) *DuplicateWarning {
	ids := snap.ByTopic[topic]
	if len(ids) == 0 {
		return nil
	}

	newSet := longWordSet(body)
	if len(newSet) == 0 {
		return nil
	}

	start := 0
	if len(ids) > dedupWindow {
		start = len(ids) - dedupWindow
	}

	var best *DuplicateWarning

	for _, id := range ids[start:] {
		prior := snap.Entries[id]
		sim := jaccard(newSet, longWordSet(prior.Body))

		if sim >= dedupThreshold && (best == nil || sim > best.Similarity) {
			best = &DuplicateWarning{SimilarToOffset: prior.Offset, Similarity: sim}
		}
	}

	return best
}

func longWordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize.Tokenize(text) {
		if len(tok) >= dedupMinWordLen {
			set[tok] = struct{}{}
		}
	}

	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}

	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}

	return float64(inter) / float64(union)
}

// reconstructBody rebuilds the on-disk body text (metadata lines + rest)
// for an entry so RenameTopic can re-append it verbatim under a new topic.
func reconstructBody(e corpus.EntryView) string {
	opts := tokenize.StoreOptions{
		SourcePath: e.SourcePath,
		SourceLine: e.SourceLine,
		Confidence: e.Confidence,
		Links:      e.Links,
	}

	for tag := range e.Tags {
		opts.Tags = append(opts.Tags, tag)
	}
	sort.Strings(opts.Tags)

	return tokenize.RenderMetadata(opts, e.Body)
}
