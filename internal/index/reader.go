package index

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/delfador0x42/amaranthine/internal/record"
)

// Posting is one (entry, term) relation surfaced by TermPostings: the raw
// material for phase one and two of a search, before any EntryMeta is
// touched (spec §4.F's "deferred snippet" design).
type Posting struct {
	EntryID uint16
	TF      uint16
	IsTag   bool
	IDF     float32
}

// EntryMeta is the decoded, aligned form of one on-disk EntryMeta record.
type EntryMeta struct {
	TopicID        uint16
	WordCount      uint16
	SnippetOffset  uint32
	SnippetLen     uint32
	TSMin          int32
	SourceID       uint32
	Confidence     float32
	LogOffset      uint64
}

// Reader is a memory-mapped, read-only view of one index file. All lookup
// methods are safe for concurrent use; Reload swaps the mapping atomically
// under a lock so in-flight readers never see a half-written file.
type Reader struct {
	path string

	mu   sync.RWMutex
	data []byte
	fd   *os.File

	entryCount  int
	termCount   int
	termCap     uint64
	topicCount  int
	sourceCount int
	xrefCount   int

	termTableOff  uint32
	postingsOff   uint32
	entryMetaOff  uint32
	snippetsOff   uint32
	topicTableOff uint32
	topicNamesOff uint32
	sourcePoolOff uint32
	xrefTableOff  uint32
	logMTimeNanos int64

	avgDocLen float64
	xrefsBy   map[uint16][]uint16

	generation uint64
	closed     bool
}

// Open mmaps path and validates its header. The caller must Close the
// returned Reader when done.
func Open(path string) (*Reader, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{path: path, fd: fd}
	if err := r.mapAndParse(); err != nil {
		fd.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) mapAndParse() error {
	st, err := r.fd.Stat()
	if err != nil {
		return err
	}

	size := st.Size()
	if size < record.IndexHeaderSize {
		return fmt.Errorf("%w: file too small (%d bytes)", ErrCorruptIndex, size)
	}

	data, err := unix.Mmap(int(r.fd.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}

	if string(data[record.HdrMagic:record.HdrMagic+4]) != record.IndexMagic {
		unix.Munmap(data)
		return fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}

	if record.U16(data[record.HdrVersion:]) != record.IndexVersion {
		unix.Munmap(data)
		return fmt.Errorf("%w: unsupported version", ErrCorruptIndex)
	}

	r.data = data
	r.entryCount = int(record.U32(data[record.HdrEntryCount:]))
	r.termCount = int(record.U32(data[record.HdrTermCount:]))
	r.topicCount = int(record.U32(data[record.HdrTopicCount:]))
	r.sourceCount = int(record.U32(data[record.HdrSourceCount:]))
	r.xrefCount = int(record.U32(data[record.HdrXrefCount:]))
	r.termCap = uint64(record.U32(data[record.HdrTermTableCap:]))
	r.termTableOff = record.U32(data[record.HdrTermTableOff:])
	r.postingsOff = record.U32(data[record.HdrPostingsOff:])
	r.entryMetaOff = record.U32(data[record.HdrEntryMetaOff:])
	r.snippetsOff = record.U32(data[record.HdrSnippetsOff:])
	r.topicTableOff = record.U32(data[record.HdrTopicTableOff:])
	r.topicNamesOff = record.U32(data[record.HdrTopicNamesOff:])
	r.sourcePoolOff = record.U32(data[record.HdrSourcePoolOff:])
	r.xrefTableOff = record.U32(data[record.HdrXrefTableOff:])
	r.logMTimeNanos = int64(record.U64(data[record.HdrLogMTimeNanos:]))

	r.computeAvgDocLen()
	r.buildXrefIndex()
	atomic.AddUint64(&r.generation, 1)

	return nil
}

func (r *Reader) computeAvgDocLen() {
	if r.entryCount == 0 {
		r.avgDocLen = 0
		return
	}

	var total uint64
	for id := 0; id < r.entryCount; id++ {
		base := r.entryMetaOff + uint32(id)*record.EntryMetaSize
		total += uint64(record.U16(r.data[base+record.EMWordCount:]))
	}

	r.avgDocLen = float64(total) / float64(r.entryCount)
}

func (r *Reader) buildXrefIndex() {
	m := make(map[uint16][]uint16, r.xrefCount)
	for i := 0; i < r.xrefCount; i++ {
		base := r.xrefTableOff + uint32(i)*record.XrefEntrySize
		from := record.U16(r.data[base+record.XrefFrom:])
		to := record.U16(r.data[base+record.XrefTo:])
		m[from] = append(m[from], to)
	}

	r.xrefsBy = m
}

// IsStale reports whether the log's current mtime differs from the mtime
// the index was built against, meaning a rebuild is needed before results
// can be trusted (spec §4.D/§4.I).
func (r *Reader) IsStale(logMTime time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return logMTime.UnixNano() != r.logMTimeNanos
}

// Reload re-opens and re-mmaps the file at path, replacing the current
// mapping. Existing lookups in flight keep using the old mapping's bytes
// until they return; Go's GC keeps the unmapped slice's backing file
// descriptor concern moot since we explicitly Munmap the old mapping only
// after installing the new one.
func (r *Reader) Reload() error {
	fd, err := os.Open(r.path)
	if err != nil {
		return err
	}

	next := &Reader{path: r.path, fd: fd}
	if err := next.mapAndParse(); err != nil {
		fd.Close()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	oldData, oldFd := r.data, r.fd

	r.data = next.data
	r.fd = next.fd
	r.entryCount = next.entryCount
	r.termCount = next.termCount
	r.termCap = next.termCap
	r.topicCount = next.topicCount
	r.sourceCount = next.sourceCount
	r.xrefCount = next.xrefCount
	r.termTableOff = next.termTableOff
	r.postingsOff = next.postingsOff
	r.entryMetaOff = next.entryMetaOff
	r.snippetsOff = next.snippetsOff
	r.topicTableOff = next.topicTableOff
	r.topicNamesOff = next.topicNamesOff
	r.sourcePoolOff = next.sourcePoolOff
	r.xrefTableOff = next.xrefTableOff
	r.logMTimeNanos = next.logMTimeNanos
	r.avgDocLen = next.avgDocLen
	r.xrefsBy = next.xrefsBy

	atomic.AddUint64(&r.generation, 1)

	unix.Munmap(oldData)
	oldFd.Close()

	return nil
}

// Generation increments on every successful Open/Reload; callers can use it
// to detect that cached pointers into a prior mapping are no longer valid.
func (r *Reader) Generation() uint64 {
	return atomic.LoadUint64(&r.generation)
}

// Close unmaps the file and releases its descriptor.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	unix.Munmap(r.data)
	return r.fd.Close()
}

// EntryCount returns the number of live entries the index covers.
func (r *Reader) EntryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entryCount
}

// AvgDocLen returns the corpus-wide average word count, cached at
// Open/Reload time so the BM25 scorer never recomputes it per query.
func (r *Reader) AvgDocLen() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.avgDocLen
}

// TermPostings resolves a pre-hashed term to its posting list. Phase one of
// a search (spec §4.F): no EntryMeta or snippet bytes are touched here.
func (r *Reader) TermPostings(hash uint64) ([]Posting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.termCap == 0 {
		return nil, false
	}

	slot := hash & (r.termCap - 1)
	probed := uint64(0)

	for probed < r.termCap {
		base := r.termTableOff + uint32(slot)*record.TermTableEntrySize
		h := record.U64(r.data[base+record.TTHash:])

		if h == 0 {
			return nil, false
		}

		if h == hash {
			postingsOff := record.U32(r.data[base+record.TTPostingsOffset:])
			df := record.U32(r.data[base+record.TTDocFreq:])

			out := make([]Posting, df)
			for i := uint32(0); i < df; i++ {
				pb := postingsOff + i*record.PostingSize
				raw := record.U16(r.data[pb+record.PTF:])

				out[i] = Posting{
					EntryID: record.U16(r.data[pb+record.PEntryID:]),
					TF:      raw & tfMask,
					IsTag:   raw&tagBit != 0,
					IDF:     record.F32(r.data[pb+record.PIDF:]),
				}
			}

			return out, true
		}

		slot = (slot + 1) & (r.termCap - 1)
		probed++
	}

	return nil, false
}

// EntryMeta decodes the metadata record for id.
func (r *Reader) EntryMeta(id uint16) EntryMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := r.entryMetaOff + uint32(id)*record.EntryMetaSize
	b := r.data

	return EntryMeta{
		TopicID:       record.U16(b[base+record.EMTopicID:]),
		WordCount:     record.U16(b[base+record.EMWordCount:]),
		SnippetOffset: record.U32(b[base+record.EMSnippetOffset:]),
		SnippetLen:    record.U32(b[base+record.EMSnippetLen:]),
		TSMin:         record.I32(b[base+record.EMTSMin:]),
		SourceID:      record.U32(b[base+record.EMSourceID:]),
		Confidence:    record.F32(b[base+record.EMConfidence:]),
		LogOffset:     record.U64(b[base+record.EMLogOffset:]),
	}
}

// Snippet returns the pre-rendered snippet text for an EntryMeta.
func (r *Reader) Snippet(m EntryMeta) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return string(r.data[m.SnippetOffset : m.SnippetOffset+m.SnippetLen])
}

// RawSnippetBytes returns the snippet bytes as a slice straight into the
// mmap, with no copy. The C ABI's amr_snippet hands this pointer to callers
// outside the Go runtime, so it must alias the mapping rather than a copy:
// it stays valid exactly as long as the mapping does, until Reload or
// Close.
func (r *Reader) RawSnippetBytes(m EntryMeta) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.data[m.SnippetOffset : m.SnippetOffset+m.SnippetLen]
}

// TopicName returns the topic name for a topic id.
func (r *Reader) TopicName(topicID uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := r.topicTableOff + uint32(topicID)*record.TopicTableEntrySize
	off := record.U32(r.data[base+record.TopicNameOffset:])
	ln := record.U32(r.data[base+record.TopicNameLen:])

	return string(r.data[off : off+ln])
}

// SourcePath returns the source path and stored build-time mtime for a
// 1-based source id. A sourceID of 0 means "no source" and returns "".
func (r *Reader) SourcePath(sourceID uint32) (path string, mtime time.Time) {
	if sourceID == 0 {
		return "", time.Time{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	base := r.sourcePoolOff + (sourceID-1)*record.SourceTableEntrySize
	off := record.U32(r.data[base+record.SrcOffset:])
	ln := record.U32(r.data[base+record.SrcLen:])
	mt := int64(record.U64(r.data[base+record.SrcMTime:]))

	return string(r.data[off : off+ln]), time.Unix(mt, 0)
}

// Xrefs returns the entry ids that entryID links to.
func (r *Reader) Xrefs(entryID uint16) []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.xrefsBy[entryID]
}
