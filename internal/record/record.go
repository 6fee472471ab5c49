// Package record owns the on-disk byte layout shared by the data log and
// the index: magic values, record/section sizes, and the term hash.
//
// Every fixed-layout struct here is packed; callers read fields with
// unaligned little-endian loads instead of casting to a Go struct, so the
// layout is stable across platforms and across the mmap boundary.
package record

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
)

// Log record kinds. The first byte of every log record is one of these.
const (
	KindEntry     = 0x01
	KindTombstone = 0x02
)

// Log file layout.
const (
	LogMagic = "AMRL"

	// EntryHeaderSize is the fixed portion of an entry record:
	// {u8 kind, u8 topic_len, u32 body_len, i32 ts_min, u16 pad}.
	EntryHeaderSize = 12

	// TombstoneSize is the full size of a tombstone record:
	// {u8 kind, u8[3] pad, u32 target_offset}.
	TombstoneSize = 8

	// MaxTopicLen is the largest encodable topic length (u8 field).
	MaxTopicLen = 255
)

// Index file layout.
const (
	IndexMagic = "AMRN"

	// IndexVersion is bumped whenever a section layout changes.
	// There is no cross-version compatibility (spec Non-goals); readers
	// reject any other version and the caller rebuilds.
	IndexVersion = uint16(1)

	// IndexHeaderSize is the fixed header preceding all sections.
	IndexHeaderSize = 72

	// SectionAlign is the alignment every section offset is rounded up to.
	SectionAlign = 4

	// TermTableEntrySize is {u64 hash, u32 postings_offset, u32 df}.
	TermTableEntrySize = 16

	// PostingSize is {u16 entry_id, u16 tf, f32 idf_contribution}.
	PostingSize = 8

	// EntryMetaSize is {u16 topic_id, u16 word_count, u32 snippet_offset,
	// u32 snippet_len, i32 ts_min, u32 source_id, f32 confidence, u64 log_offset}.
	EntryMetaSize = 32

	// TopicTableEntrySize is {u32 name_offset, u32 name_len, u32 entry_count}.
	TopicTableEntrySize = 12

	// SourceTableEntrySize is {u32 offset, u32 len, i64 source_mtime}.
	SourceTableEntrySize = 16

	// XrefEntrySize is {u16 from_entry_id, u16 to_entry_id}.
	XrefEntrySize = 4

	// MaxEntryID bounds the u16 entry id space (spec §4.E "no entry ID is
	// ever > 65,535 by design").
	MaxEntryID = 65535
)

// Index header field offsets, all relative to the start of the file.
// The header is exactly IndexHeaderSize (72) bytes; every multi-byte
// field is little-endian.
const (
	HdrMagic         = 0  // [4]byte
	HdrVersion       = 4  // u16
	HdrPad           = 6  // u16, reserved
	HdrEntryCount    = 8  // u32
	HdrTermCount     = 12 // u32
	HdrTopicCount    = 16 // u32
	HdrSourceCount   = 20 // u32
	HdrXrefCount     = 24 // u32
	HdrTermTableCap  = 28 // u32, power of two
	HdrTermTableOff  = 32 // u32
	HdrPostingsOff   = 36 // u32
	HdrEntryMetaOff  = 40 // u32
	HdrSnippetsOff   = 44 // u32
	HdrTopicTableOff = 48 // u32
	HdrTopicNamesOff = 52 // u32
	HdrSourcePoolOff = 56 // u32
	HdrXrefTableOff  = 60 // u32
	HdrLogMTimeNanos = 64 // i64
)

// EntryMeta field offsets, relative to the start of one EntryMeta record.
const (
	EMTopicID        = 0  // u16
	EMWordCount      = 2  // u16
	EMSnippetOffset  = 4  // u32
	EMSnippetLen     = 8  // u32
	EMTSMin          = 12 // i32
	EMSourceID       = 16 // u32, 1-based index into the source table; 0 = none
	EMConfidence     = 20 // f32
	EMLogOffset      = 24 // u64 (ends at 32, EntryMetaSize)
)

// TermTable entry field offsets, relative to the start of one slot.
const (
	TTHash           = 0  // u64
	TTPostingsOffset = 8  // u32, absolute file offset of the term's postings run
	TTDocFreq        = 12 // u32 (ends at 16, TermTableEntrySize)
)

// Posting field offsets, relative to the start of one posting.
const (
	PEntryID = 0 // u16
	PTF      = 2 // u16
	PIDF     = 4 // f32 (ends at 8, PostingSize)
)

// TopicTable entry field offsets.
const (
	TopicNameOffset = 0 // u32, absolute file offset
	TopicNameLen    = 4 // u32
	TopicEntryCount = 8 // u32 (ends at 12)
)

// SourceTable entry field offsets.
const (
	SrcOffset = 0  // u32, absolute file offset of the packed path string
	SrcLen    = 4  // u32
	SrcMTime  = 8  // i64 unix seconds (ends at 16)
)

// Xref entry field offsets.
const (
	XrefFrom = 0 // u16
	XrefTo   = 2 // u16 (ends at 4)
)

// AlignUp rounds off up to the next multiple of SectionAlign.
func AlignUp(off uint32) uint32 {
	rem := off % SectionAlign
	if rem == 0 {
		return off
	}

	return off + (SectionAlign - rem)
}

// HashTerm computes the 64-bit FNV-1a hash of the lowercased term.
// A result of exactly 0 is remapped to 1, since 0 is the reserved
// empty-slot sentinel in the term table.
func HashTerm(term string) uint64 {
	h := fnv.New64a()
	// hash/fnv.Write never returns an error.
	_, _ = h.Write([]byte(strings.ToLower(term)))

	sum := h.Sum64()
	if sum == 0 {
		return 1
	}

	return sum
}

// NextPow2 returns the smallest power of two that is >= n, with a floor of 1.
func NextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}

	p := uint64(1)
	for p < n {
		p <<= 1
	}

	return p
}

// PutU32 and the helpers below centralize the little-endian encoding so
// every section writer and reader agrees on byte order without re-deriving
// it at each call site.
func PutU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func PutU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func PutU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func U32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func U16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func U64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// PutF32 and F32 round-trip a float32 through its bit pattern so the on-disk
// layout stays a plain little-endian u32 rather than a platform-dependent
// float encoding.
func PutF32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func F32(b []byte) float32       { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

// PutI32 and I32 handle the signed 32-bit timestamp-in-minutes field.
func PutI32(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }
func I32(b []byte) int32       { return int32(binary.LittleEndian.Uint32(b)) }
