// Package rank implements the BM25 query-time scorer: topic, tag, and
// confidence boosts over the raw postings the index hands back, AND→OR
// fallback, and the final tie-break ordering.
package rank

import (
	"container/heap"
	"os"
	"sort"

	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/record"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// Standard Okapi BM25 constants (spec §4.G). These are not configurable;
// the index bakes idf against document counts only, so changing K1/B here
// never requires a rebuild.
const (
	K1 = 1.2
	B  = 0.75

	topicBoost = 1.5 // query term also a token of the entry's topic name
	tagBoost   = 1.3 // query term also a tag of the entry (30% bonus)

	staleConfidenceCap = 0.5
)

// Mode selects how multiple query terms combine.
type Mode int

const (
	ModeAuto Mode = iota // AND first, OR fallback if that yields nothing
	ModeAnd
	ModeOr
)

// Hit is one scored search result. TSMin rides along so the top-K heap and
// the final sort can apply the full (score, ts, id) tie-break without a
// second index lookup.
type Hit struct {
	EntryID uint16
	Score   float64
	TSMin   int32
}

type termMatch struct {
	term     string
	postings []index.Posting
}

// Search scores every entry matching terms against reader and returns the
// top K hits, highest score first. An empty terms slice returns no hits.
func Search(r *index.Reader, terms []string, mode Mode, topK int) []Hit {
	if len(terms) == 0 || topK <= 0 {
		return nil
	}

	matches := make([]termMatch, 0, len(terms))

	for _, term := range terms {
		postings, ok := r.TermPostings(record.HashTerm(term))
		if !ok {
			continue
		}
		matches = append(matches, termMatch{term: term, postings: postings})
	}

	if len(matches) == 0 {
		return nil
	}

	effectiveMode := mode
	if mode == ModeAuto {
		effectiveMode = ModeAnd
	}

	hits := score(r, matches, effectiveMode, len(terms))

	if mode == ModeAuto && len(hits) == 0 {
		hits = score(r, matches, ModeOr, len(terms))
	}

	return topN(hits, topK)
}

// SearchByHashes scores entries directly against pre-hashed term hashes,
// skipping tokenization. It has no topic-name boost since that needs the
// original term text, which a raw hash does not carry. Used by the C ABI's
// amr_search_raw, where callers already have hashes cached.
func SearchByHashes(r *index.Reader, hashes []uint64, mode Mode, topK int) []Hit {
	if len(hashes) == 0 || topK <= 0 {
		return nil
	}

	matches := make([]termMatch, 0, len(hashes))

	for _, h := range hashes {
		postings, ok := r.TermPostings(h)
		if !ok {
			continue
		}
		matches = append(matches, termMatch{postings: postings})
	}

	if len(matches) == 0 {
		return nil
	}

	effectiveMode := mode
	if mode == ModeAuto {
		effectiveMode = ModeAnd
	}

	hits := score(r, matches, effectiveMode, len(hashes))

	if mode == ModeAuto && len(hits) == 0 {
		hits = score(r, matches, ModeOr, len(hashes))
	}

	return topN(hits, topK)
}

// score sums each entry's BM25+tag+confidence contribution across all
// matching terms, then applies the topic-name boost once to that sum if
// any query term matched a token of the entry's topic (spec §4.G: the
// boost multiplies the entry's score, not each term's contribution —
// applying it per-term would over- or under-boost a multi-term query
// where only some terms match the topic).
func score(r *index.Reader, matches []termMatch, mode Mode, wantTerms int) []Hit {
	contrib := make(map[uint16]float64)
	matchedTerms := make(map[uint16]int)
	topicMatched := make(map[uint16]bool)
	tsByEntry := make(map[uint16]int32)

	avgdl := avgdlOrOne(r.AvgDocLen())
	topicTokenCache := make(map[uint16]map[string]struct{})
	staleCache := make(map[uint32]bool)

	for _, m := range matches {
		for _, p := range m.postings {
			meta := r.EntryMeta(p.EntryID)

			dl := float64(meta.WordCount)
			tf := float64(p.TF)

			norm := tf + K1*(1-B+B*dl/avgdl)
			base := float64(p.IDF) * (tf * (K1 + 1)) / norm

			if p.IsTag {
				base *= tagBoost
			}

			base *= confidenceFor(r, staleCache, meta)

			if _, ok := topicTokens(r, topicTokenCache, meta.TopicID)[m.term]; ok {
				topicMatched[p.EntryID] = true
			}

			contrib[p.EntryID] += base
			matchedTerms[p.EntryID]++
			tsByEntry[p.EntryID] = meta.TSMin
		}
	}

	hits := make([]Hit, 0, len(contrib))
	for id, s := range contrib {
		if mode == ModeAnd && matchedTerms[id] < wantTerms {
			continue
		}

		if topicMatched[id] {
			s *= topicBoost
		}

		hits = append(hits, Hit{EntryID: id, Score: s, TSMin: tsByEntry[id]})
	}

	return hits
}

func topicTokens(r *index.Reader, cache map[uint16]map[string]struct{}, topicID uint16) map[string]struct{} {
	if set, ok := cache[topicID]; ok {
		return set
	}

	name := r.TopicName(topicID)
	set := make(map[string]struct{})
	for _, tok := range tokenize.Tokenize(name) {
		set[tok] = struct{}{}
	}

	cache[topicID] = set

	return set
}

func confidenceFor(r *index.Reader, cache map[uint32]bool, meta index.EntryMeta) float64 {
	conf := float64(meta.Confidence)
	if meta.SourceID == 0 {
		return conf
	}

	stale, ok := cache[meta.SourceID]
	if !ok {
		path, builtMTime := r.SourcePath(meta.SourceID)
		stale = false
		if st, err := os.Stat(path); err == nil {
			stale = st.ModTime().After(builtMTime)
		}
		cache[meta.SourceID] = stale
	}

	if stale && conf > staleConfidenceCap {
		return staleConfidenceCap
	}

	return conf
}

func avgdlOrOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// topN keeps the k highest-scoring hits via a bounded min-heap, evicting by
// the same (score, ts, id) order used for the final sort, so that when
// scores tie across the k boundary the survivors are the ones the full
// tie-break would have kept rather than whichever the heap happened to
// hold (spec §4.G: "equal scores ordered by descending timestamp, then
// ascending entry id").
func topN(hits []Hit, k int) []Hit {
	h := &hitHeap{}
	heap.Init(h)

	for _, hit := range hits {
		heap.Push(h, hit)
		if h.Len() > k {
			heap.Pop(h)
		}
	}

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[j], out[i])
	})

	return out
}

// less reports whether a ranks strictly worse than b under the spec's
// (score desc, ts desc, id asc) order: higher score wins, ties broken by
// newer timestamp, remaining ties broken by lower entry id.
func less(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}

	if a.TSMin != b.TSMin {
		return a.TSMin < b.TSMin
	}

	return a.EntryID > b.EntryID
}

type hitHeap []Hit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return less(h[i], h[j]) } // min-heap: worst-ranked first
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
