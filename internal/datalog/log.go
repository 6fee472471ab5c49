// Package datalog implements the append-only data log: the durable record
// of every entry and tombstone (spec §3, §4.C).
package datalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/delfador0x42/amaranthine/internal/record"
)

// Entry is one live record read back from the log.
type Entry struct {
	Offset int64
	Topic  string
	Body   []byte
	TSMin  int32
}

// Log is the append-only file at Path, holding entries and tombstones in
// write order. Log does not itself serialize writers; callers wrap
// mutating calls in WithWriteLock.
type Log struct {
	Path string
}

// Open returns a Log bound to path, creating it (with the "AMRL" magic
// prefix) if it does not already exist.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening log: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat log: %w", ErrIO, err)
	}

	if info.Size() == 0 {
		if _, err := f.Write([]byte(record.LogMagic)); err != nil {
			return nil, fmt.Errorf("%w: writing magic: %w", ErrIO, err)
		}
	}

	return &Log{Path: path}, nil
}

// Stat returns the log file's size and modification time, used by the
// corpus cache to decide whether a rebuild is needed.
func (l *Log) Stat() (size int64, mtime time.Time, err error) {
	info, err := os.Stat(l.Path)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: stat log: %w", ErrIO, err)
	}

	return info.Size(), info.ModTime(), nil
}

// AppendEntry appends one entry record and returns its byte offset (the
// offset of the record's first byte, i.e. the kind byte).
func (l *Log) AppendEntry(topic string, body []byte, tsMin int32) (int64, error) {
	if len(topic) > record.MaxTopicLen {
		return 0, fmt.Errorf("%w: topic exceeds %d bytes", ErrCorruptLog, record.MaxTopicLen)
	}

	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: opening log for append: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: seeking log end: %w", ErrIO, err)
	}

	buf := make([]byte, record.EntryHeaderSize+len(topic)+len(body))
	buf[0] = record.KindEntry
	buf[1] = byte(len(topic))
	record.PutU32(buf[2:6], uint32(len(body)))
	record.PutI32(buf[6:10], tsMin)
	// buf[10:12] is the reserved pad, left zero.
	copy(buf[record.EntryHeaderSize:], topic)
	copy(buf[record.EntryHeaderSize+len(topic):], body)

	if _, err := f.Write(buf); err != nil {
		return 0, fmt.Errorf("%w: writing entry: %w", ErrIO, err)
	}

	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("%w: fsync entry: %w", ErrIO, err)
	}

	return offset, nil
}

// AppendTombstone appends a tombstone invalidating the entry at target.
func (l *Log) AppendTombstone(target int64) error {
	if target < 0 || target > int64(^uint32(0)) {
		return fmt.Errorf("%w: target offset %d out of range", ErrOffsetNotFound, target)
	}

	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening log for append: %w", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, record.TombstoneSize)
	buf[0] = record.KindTombstone
	record.PutU32(buf[4:8], uint32(target))

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("%w: writing tombstone: %w", ErrIO, err)
	}

	return f.Sync()
}

// IterLive streams every live entry (one whose offset has no matching
// tombstone) in log order, calling yield for each. A bad magic is treated
// as an empty log rather than an error. A truncated trailing record is
// silently dropped (truncate-to-last-good-record semantics); any other
// framing inconsistency is reported as ErrCorruptLog.
func (l *Log) IterLive(yield func(Entry) error) error {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("%w: reading log: %w", ErrIO, err)
	}

	if len(data) < len(record.LogMagic) || string(data[:len(record.LogMagic)]) != record.LogMagic {
		return nil // bad magic => treated as empty log
	}

	body := data[len(record.LogMagic):]

	tombstones := make(map[int64]struct{})
	entries := make([]Entry, 0, 64)

	pos := 0
	base := int64(len(record.LogMagic))

	for pos < len(body) {
		kind := body[pos]

		switch kind {
		case record.KindTombstone:
			if pos+record.TombstoneSize > len(body) {
				// Torn trailing record: stop, discard the partial tail.
				pos = len(body)

				continue
			}

			target := record.U32(body[pos+4 : pos+8])
			tombstones[int64(target)] = struct{}{}
			pos += record.TombstoneSize

		case record.KindEntry:
			if pos+record.EntryHeaderSize > len(body) {
				pos = len(body)

				continue
			}

			topicLen := int(body[pos+1])
			bodyLen := int(record.U32(body[pos+2 : pos+6]))
			tsMin := record.I32(body[pos+6 : pos+10])

			recStart := pos
			headerEnd := pos + record.EntryHeaderSize
			total := record.EntryHeaderSize + topicLen + bodyLen

			if headerEnd+topicLen+bodyLen > len(body) {
				pos = len(body)

				continue
			}

			topic := string(body[headerEnd : headerEnd+topicLen])
			entryBody := body[headerEnd+topicLen : headerEnd+topicLen+bodyLen]

			entries = append(entries, Entry{
				Offset: base + int64(recStart),
				Topic:  topic,
				Body:   entryBody,
				TSMin:  tsMin,
			})

			pos += total

		default:
			return fmt.Errorf("%w: unknown record kind 0x%02x at offset %d", ErrCorruptLog, kind, base+int64(pos))
		}
	}

	for _, e := range entries {
		if _, dead := tombstones[e.Offset]; dead {
			continue
		}

		if err := yield(e); err != nil {
			return err
		}
	}

	return nil
}

// Compact rewrites the log with only live entries, at new offsets, to a
// temporary file and atomically replaces the active file after fsync.
// Entry offsets change; callers must treat any previously cached offset
// (e.g. in narrative links resolved to offsets, or FFI entry ids) as
// invalidated by a compaction.
func (l *Log) Compact() error {
	buf := make([]byte, 0, 4096)
	buf = append(buf, []byte(record.LogMagic)...)

	err := l.IterLive(func(e Entry) error {
		rec := make([]byte, record.EntryHeaderSize+len(e.Topic)+len(e.Body))
		rec[0] = record.KindEntry
		rec[1] = byte(len(e.Topic))
		record.PutU32(rec[2:6], uint32(len(e.Body)))
		record.PutI32(rec[6:10], e.TSMin)
		copy(rec[record.EntryHeaderSize:], e.Topic)
		copy(rec[record.EntryHeaderSize+len(e.Topic):], e.Body)

		buf = append(buf, rec...)

		return nil
	})
	if err != nil {
		return fmt.Errorf("reading live entries for compaction: %w", err)
	}

	if err := atomic.WriteFile(l.Path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("%w: replacing log: %w", ErrIO, err)
	}

	return nil
}
