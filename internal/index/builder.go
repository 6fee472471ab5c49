package index

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/delfador0x42/amaranthine/internal/corpus"
	"github.com/delfador0x42/amaranthine/internal/record"
)

// tagBit marks a posting's tf field as belonging to an entry whose tag set
// contains the term, so the ranker's tag boost (spec §4.G) can be applied
// without a dedicated tag section. The spec's nine sections have no room for
// per-entry tag lists, so the flag rides in the unused high bit of the u16
// tf field; real term frequencies never approach 2^15 in a single entry.
const tagBit = uint16(0x8000)

const tfMask = uint16(0x7fff)

// snippetMaxBytes bounds how much of an entry's body is copied into the
// snippet pool, keeping the index small for large corpora.
const snippetMaxBytes = 240

type termAgg struct {
	hash     uint64
	postings []postingDraft
}

type postingDraft struct {
	entryID uint16
	tf      uint16 // high bit set if the term is also a tag of this entry
}

// Build renders a full binary index from snap and returns the encoded
// bytes. The caller is responsible for writing them atomically (spec §4.E:
// "a rebuild writes a new file and atomically renames it").
func Build(snap *corpus.Snapshot) ([]byte, error) {
	n := len(snap.Entries)
	if n > record.MaxEntryID+1 {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, n)
	}

	topicNames := snap.TopicNames()
	topicID := make(map[string]uint16, len(topicNames))
	for i, name := range topicNames {
		topicID[name] = uint16(i)
	}

	sourceID, sourcePaths := collectSources(snap)

	terms := make(map[uint64]*termAgg)
	totalWords := 0

	for id, e := range snap.Entries {
		totalWords += e.WordCount

		for term, tf := range e.Terms {
			h := record.HashTerm(term)

			agg, ok := terms[h]
			if !ok {
				agg = &termAgg{hash: h}
				terms[h] = agg
			}

			t := tf
			if t > uint32(tfMask) {
				t = uint32(tfMask)
			}

			packed := uint16(t)
			if _, isTag := e.Tags[term]; isTag {
				packed |= tagBit
			}

			agg.postings = append(agg.postings, postingDraft{entryID: uint16(id), tf: packed})
		}
	}

	sortedHashes := make([]uint64, 0, len(terms))
	for h, agg := range terms {
		sort.Slice(agg.postings, func(i, j int) bool { return agg.postings[i].entryID < agg.postings[j].entryID })
		sortedHashes = append(sortedHashes, h)
	}

	sort.Slice(sortedHashes, func(i, j int) bool { return sortedHashes[i] < sortedHashes[j] })

	cap64 := record.NextPow2(uint64(len(terms)*2 + 1))

	var postingsBuf bytes.Buffer
	termSlots := make([]byte, cap64*record.TermTableEntrySize)

	for _, h := range sortedHashes {
		agg := terms[h]
		df := uint32(len(agg.postings))

		postingsOffsetInSection := uint32(postingsBuf.Len())
		idf := bm25IDF(n, int(df))

		for _, p := range agg.postings {
			var rec [record.PostingSize]byte
			record.PutU16(rec[record.PEntryID:], p.entryID)
			record.PutU16(rec[record.PTF:], p.tf)
			record.PutF32(rec[record.PIDF:], idf)
			postingsBuf.Write(rec[:])
		}

		slot := h & (cap64 - 1)
		for {
			base := slot * record.TermTableEntrySize
			existing := record.U64(termSlots[base+record.TTHash:])
			if existing == 0 {
				break
			}
			slot = (slot + 1) & (cap64 - 1)
		}

		base := slot * record.TermTableEntrySize
		record.PutU64(termSlots[base+record.TTHash:], h)
		record.PutU32(termSlots[base+record.TTPostingsOffset:], postingsOffsetInSection) // patched below
		record.PutU32(termSlots[base+record.TTDocFreq:], df)
	}

	var snippetsBuf bytes.Buffer
	entryMeta := make([]byte, n*record.EntryMetaSize)

	for id, e := range snap.Entries {
		snippet := e.Body
		if len(snippet) > snippetMaxBytes {
			snippet = snippet[:snippetMaxBytes]
		}

		off := uint32(snippetsBuf.Len())
		snippetsBuf.WriteString(snippet)

		var srcID uint32
		if e.SourcePath != "" {
			srcID = sourceID[e.SourcePath]
		}

		base := id * record.EntryMetaSize
		record.PutU16(entryMeta[base+record.EMTopicID:], topicID[e.Topic.String()])
		record.PutU16(entryMeta[base+record.EMWordCount:], clampU16(e.WordCount))
		record.PutU32(entryMeta[base+record.EMSnippetOffset:], off) // patched below
		record.PutU32(entryMeta[base+record.EMSnippetLen:], uint32(len(snippet)))
		record.PutI32(entryMeta[base+record.EMTSMin:], e.TSMin)
		record.PutU32(entryMeta[base+record.EMSourceID:], srcID)
		record.PutF32(entryMeta[base+record.EMConfidence:], float32(e.Confidence))
		record.PutU64(entryMeta[base+record.EMLogOffset:], uint64(e.Offset))
	}

	topicTable := make([]byte, len(topicNames)*record.TopicTableEntrySize)
	var topicNamesBuf bytes.Buffer

	for i, name := range topicNames {
		off := uint32(topicNamesBuf.Len())
		topicNamesBuf.WriteString(name)

		base := i * record.TopicTableEntrySize
		record.PutU32(topicTable[base+record.TopicNameOffset:], off) // patched below
		record.PutU32(topicTable[base+record.TopicNameLen:], uint32(len(name)))
		record.PutU32(topicTable[base+record.TopicEntryCount:], uint32(len(snap.ByTopic[name])))
	}

	sourceTable := make([]byte, len(sourcePaths)*record.SourceTableEntrySize)
	var sourcePoolBuf bytes.Buffer

	for i, path := range sourcePaths {
		off := uint32(sourcePoolBuf.Len())
		sourcePoolBuf.WriteString(path)

		var mtime int64
		if st, err := os.Stat(path); err == nil {
			mtime = st.ModTime().Unix()
		}

		base := i * record.SourceTableEntrySize
		record.PutU32(sourceTable[base+record.SrcOffset:], off) // patched below
		record.PutU32(sourceTable[base+record.SrcLen:], uint32(len(path)))
		record.PutU64(sourceTable[base+record.SrcMTime:], uint64(mtime))
	}

	xrefs := collectXrefs(snap)
	xrefTable := make([]byte, len(xrefs)*record.XrefEntrySize)
	for i, x := range xrefs {
		base := i * record.XrefEntrySize
		record.PutU16(xrefTable[base+record.XrefFrom:], x.from)
		record.PutU16(xrefTable[base+record.XrefTo:], x.to)
	}

	return assemble(snap, n, len(terms), cap64, termSlots, postingsBuf.Bytes(),
		entryMeta, snippetsBuf.Bytes(), topicTable, topicNamesBuf.Bytes(),
		sourceTable, sourcePoolBuf.Bytes(), xrefTable)
}

// assemble lays out every section back to back after the fixed header,
// patching each section-relative offset recorded by the callers above into
// an absolute file offset, and fills in the header.
func assemble(
	snap *corpus.Snapshot,
	entryCount, termCount int,
	termCap uint64,
	termTable, postings, entryMeta, snippets, topicTable, topicNames,
	sourceTable, sourcePool, xrefTable []byte,
) ([]byte, error) {
	off := uint32(record.IndexHeaderSize)

	termTableOff := off
	off = record.AlignUp(off + uint32(len(termTable)))

	postingsOff := off
	off = record.AlignUp(off + uint32(len(postings)))

	entryMetaOff := off
	off = record.AlignUp(off + uint32(len(entryMeta)))

	snippetsOff := off
	off = record.AlignUp(off + uint32(len(snippets)))

	topicTableOff := off
	off = record.AlignUp(off + uint32(len(topicTable)))

	topicNamesOff := off
	off = record.AlignUp(off + uint32(len(topicNames)))

	// The spec names a single "SourcePool" section; the fixed-size source
	// table (offset/len/mtime per distinct path) is packed immediately
	// before the pooled path bytes within that one section, so the 72-byte
	// header only needs the one HdrSourcePoolOff field to locate both.
	sourceTableOff := off
	off = record.AlignUp(off + uint32(len(sourceTable)))

	sourcePoolOff := off
	off = record.AlignUp(off + uint32(len(sourcePool)))

	xrefTableOff := off
	total := off + uint32(len(xrefTable))

	// Patch term table postings_offset fields: they were recorded relative
	// to the start of the postings section.
	for slot := uint64(0); slot < termCap; slot++ {
		base := slot * record.TermTableEntrySize
		if record.U64(termTable[base+record.TTHash:]) == 0 {
			continue
		}
		rel := record.U32(termTable[base+record.TTPostingsOffset:])
		record.PutU32(termTable[base+record.TTPostingsOffset:], postingsOff+rel)
	}

	for id := 0; id < entryCount; id++ {
		base := id * record.EntryMetaSize
		rel := record.U32(entryMeta[base+record.EMSnippetOffset:])
		record.PutU32(entryMeta[base+record.EMSnippetOffset:], snippetsOff+rel)
	}

	topicN := len(snap.ByTopic)
	for i := 0; i < topicN; i++ {
		base := i * record.TopicTableEntrySize
		rel := record.U32(topicTable[base+record.TopicNameOffset:])
		record.PutU32(topicTable[base+record.TopicNameOffset:], topicNamesOff+rel)
	}

	sourceN := len(sourceTable) / record.SourceTableEntrySize
	for i := 0; i < sourceN; i++ {
		base := i * record.SourceTableEntrySize
		rel := record.U32(sourceTable[base+record.SrcOffset:])
		record.PutU32(sourceTable[base+record.SrcOffset:], sourcePoolOff+rel)
	}

	buf := make([]byte, total)

	copy(buf[record.HdrMagic:], record.IndexMagic)
	record.PutU16(buf[record.HdrVersion:], record.IndexVersion)
	record.PutU32(buf[record.HdrEntryCount:], uint32(entryCount))
	record.PutU32(buf[record.HdrTermCount:], uint32(termCount))
	record.PutU32(buf[record.HdrTopicCount:], uint32(topicN))
	record.PutU32(buf[record.HdrSourceCount:], uint32(sourceN))
	record.PutU32(buf[record.HdrXrefCount:], uint32(len(xrefTable)/record.XrefEntrySize))
	record.PutU32(buf[record.HdrTermTableCap:], uint32(termCap))
	record.PutU32(buf[record.HdrTermTableOff:], termTableOff)
	record.PutU32(buf[record.HdrPostingsOff:], postingsOff)
	record.PutU32(buf[record.HdrEntryMetaOff:], entryMetaOff)
	record.PutU32(buf[record.HdrSnippetsOff:], snippetsOff)
	record.PutU32(buf[record.HdrTopicTableOff:], topicTableOff)
	record.PutU32(buf[record.HdrTopicNamesOff:], topicNamesOff)
	record.PutU32(buf[record.HdrSourcePoolOff:], sourceTableOff)
	record.PutU32(buf[record.HdrXrefTableOff:], xrefTableOff)
	record.PutU64(buf[record.HdrLogMTimeNanos:], uint64(snap.LogMTime.UnixNano()))

	copy(buf[termTableOff:], termTable)
	copy(buf[postingsOff:], postings)
	copy(buf[entryMetaOff:], entryMeta)
	copy(buf[snippetsOff:], snippets)
	copy(buf[topicTableOff:], topicTable)
	copy(buf[topicNamesOff:], topicNames)
	copy(buf[sourceTableOff:], sourceTable)
	copy(buf[sourcePoolOff:], sourcePool)
	copy(buf[xrefTableOff:], xrefTable)

	return buf, nil
}

type xref struct{ from, to uint16 }

// collectXrefs resolves every entry's [links: topic:idx ...] references to
// absolute entry ids. A link whose index is out of range for its target
// topic is silently dropped; the spec does not require link validation to
// fail the write.
func collectXrefs(snap *corpus.Snapshot) []xref {
	var out []xref

	for id, e := range snap.Entries {
		for _, link := range e.Links {
			ids, ok := snap.ByTopic[link.Topic]
			if !ok || link.Index < 0 || link.Index >= len(ids) {
				continue
			}

			out = append(out, xref{from: uint16(id), to: uint16(ids[link.Index])})
		}
	}

	return out
}

// collectSources assigns each distinct non-empty source path a 1-based id,
// in sorted order for build determinism.
func collectSources(snap *corpus.Snapshot) (map[string]uint32, []string) {
	set := make(map[string]struct{})
	for _, e := range snap.Entries {
		if e.SourcePath != "" {
			set[e.SourcePath] = struct{}{}
		}
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ids := make(map[string]uint32, len(paths))
	for i, p := range paths {
		ids[p] = uint32(i + 1)
	}

	return ids, paths
}

// bm25IDF computes the BM25 idf contribution for a term with document
// frequency df out of n documents, per spec §4.E: log((n-df+0.5)/(df+0.5)).
// Baking this in at build time means the query path never calls math.Log
// (spec §4.G). A term present in more than half the corpus yields a
// negative raw value; that's clamped to 0 so such a term can only fail to
// help a score, never actively penalize it.
func bm25IDF(n, df int) float32 {
	nf, dff := float64(n), float64(df)

	v := math.Log((nf - dff + 0.5) / (dff + 0.5))
	if v < 0 {
		v = 0
	}

	return float32(v)
}

func clampU16(v int) uint16 {
	if v > 0xffff {
		return 0xffff
	}

	return uint16(v)
}
