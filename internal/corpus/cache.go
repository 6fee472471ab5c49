// Package corpus holds the mtime-invalidated, process-wide snapshot of the
// log's live entries, pre-tokenized for search (spec §4.D).
package corpus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/delfador0x42/amaranthine/internal/datalog"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// EntryView is one live entry as seen by the cache: tokenized, with
// metadata already extracted.
type EntryView struct {
	Offset     int64
	Topic      *Topic
	Body       string // body text with leading metadata lines stripped
	TSMin      int32
	Terms      map[string]uint32
	WordCount  int
	Tags       map[string]struct{}
	SourcePath string
	SourceLine int
	Confidence float64
	Links      []tokenize.Link
}

// Snapshot is an immutable in-memory projection of the log's live entries
// at the moment it was built. EntryID is the entry's index into Entries
// and is the id used by the index builder and the ranker.
type Snapshot struct {
	LogMTime time.Time
	Entries  []EntryView
	ByTopic  map[string][]int // topic name -> entry ids, insertion order
}

// TopicCount returns the number of distinct live topics.
func (s *Snapshot) TopicCount() int { return len(s.ByTopic) }

// TopicNames returns topic names in sorted order.
func (s *Snapshot) TopicNames() []string {
	names := make([]string, 0, len(s.ByTopic))
	for name := range s.ByTopic {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Cache is a mutex-guarded, mtime-keyed snapshot of log.
type Cache struct {
	log *datalog.Log

	mu       sync.Mutex
	snapshot *Snapshot
	mtime    time.Time
	valid    bool
}

// New returns a Cache reading from log. The cache is empty until the
// first call to Snapshot.
func New(log *datalog.Log) *Cache {
	return &Cache{log: log}
}

// Snapshot returns the current snapshot, rebuilding it first if the log's
// on-disk mtime has changed since the last build or if Invalidate was
// called since.
func (c *Cache) Snapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, mtime, err := c.log.Stat()
	if err != nil {
		return nil, err
	}

	if c.valid && mtime.Equal(c.mtime) {
		return c.snapshot, nil
	}

	snap, err := build(c.log, mtime)
	if err != nil {
		return nil, err
	}

	c.snapshot = snap
	c.mtime = mtime
	c.valid = true

	return snap, nil
}

// Invalidate forces the next Snapshot call to rebuild regardless of mtime,
// called by the write coordinator at the end of every successful write.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
}

func build(log *datalog.Log, mtime time.Time) (*Snapshot, error) {
	in := newInterner()

	snap := &Snapshot{
		LogMTime: mtime,
		ByTopic:  make(map[string][]int),
	}

	err := log.IterLive(func(e datalog.Entry) error {
		meta, rest := tokenize.ParseMetadata(string(e.Body))

		terms := make(map[string]uint32)
		tokenize.TokenizeCount(rest, terms)

		wordCount := 0
		for _, n := range terms {
			wordCount += int(n)
		}

		tagSet := make(map[string]struct{}, len(meta.Tags))
		for _, tag := range meta.Tags {
			tagSet[tag] = struct{}{}
		}

		topic := in.intern(e.Topic)

		id := len(snap.Entries)
		snap.Entries = append(snap.Entries, EntryView{
			Offset:     e.Offset,
			Topic:      topic,
			Body:       rest,
			TSMin:      e.TSMin,
			Terms:      terms,
			WordCount:  wordCount,
			Tags:       tagSet,
			SourcePath: meta.SourcePath,
			SourceLine: meta.SourceLine,
			Confidence: meta.Confidence,
			Links:      meta.Links,
		})

		snap.ByTopic[e.Topic] = append(snap.ByTopic[e.Topic], id)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building corpus snapshot: %w", err)
	}

	return snap, nil
}
