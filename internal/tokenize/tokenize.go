// Package tokenize implements the ASCII-fast, CamelCase/snake_case-aware
// term splitter shared by index building and query scoring, plus the
// leading-metadata-line parser for entry bodies.
package tokenize

import "unicode"

// MinTermLen is the shortest term kept by the tokenizer; everything shorter
// is discarded.
const MinTermLen = 2

// stopWords is a conservative list of pure function words. It filters
// search queries only — the index itself is built without stop-word
// filtering, so a stop word can still be found via exact phrase context
// inside a larger compound term.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "him": {}, "his": {}, "how": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "so": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "you": {},
}

// Tokenize splits text into lowercased terms per the CamelCase/snake_case
// rules in spec §4.B. It applies no stop-word filtering; use TokenizeQuery
// for query-side filtering.
func Tokenize(text string) []string {
	terms := make([]string, 0, len(text)/5+1)

	TokenizeInto(text, func(term string) {
		terms = append(terms, term)
	})

	return terms
}

// TokenizeQuery is Tokenize with the stop-word list applied, for query text.
func TokenizeQuery(text string) []string {
	raw := Tokenize(text)
	out := raw[:0]

	for _, t := range raw {
		if _, stop := stopWords[t]; stop {
			continue
		}

		out = append(out, t)
	}

	return out
}

// TokenizeCount tokenizes text directly into a term -> frequency map,
// eliminating the intermediate slice allocation used by cache building.
func TokenizeCount(text string, into map[string]uint32) {
	TokenizeInto(text, func(term string) {
		into[term]++
	})
}

// TokenizeInto calls emit once per kept term, in order, without building
// an intermediate slice. It is the single pass both Tokenize and
// TokenizeCount are built on.
func TokenizeInto(text string, emit func(term string)) {
	if isASCII(text) {
		tokenizeASCII(text, emit)

		return
	}

	tokenizeUnicode(text, emit)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}

	return true
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }
func isUpperByte(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLowerByte(c byte) bool { return c >= 'a' && c <= 'z' }
func isAlphaByte(c byte) bool { return isUpperByte(c) || isLowerByte(c) }
func toLowerByte(c byte) byte {
	if isUpperByte(c) {
		return c + ('a' - 'A')
	}

	return c
}

// tokenizeASCII is the byte-only fast path: one forward pass, no rune
// decoding, splitting digit runs, letter runs, and CamelCase boundaries.
func tokenizeASCII(s string, emit func(term string)) {
	n := len(s)
	i := 0

	buf := make([]byte, 0, 32)

	emitRange := func(start, end int) {
		if end-start < MinTermLen {
			return
		}

		buf = buf[:0]
		for k := start; k < end; k++ {
			buf = append(buf, toLowerByte(s[k]))
		}

		emit(string(buf))
	}

	for i < n {
		c := s[i]

		switch {
		case isDigitByte(c):
			start := i
			for i < n && isDigitByte(s[i]) {
				i++
			}

			emitRange(start, i)

		case isUpperByte(c):
			start := i
			j := i

			for j < n && isUpperByte(s[j]) {
				j++
			}

			switch {
			case j-start > 1 && j < n && isLowerByte(s[j]):
				// HTTPServer: the last uppercase letter starts the next
				// word, so back off one position (e.g. "HTTP" | "Server").
				j--
			case j-start == 1 && j < n && isLowerByte(s[j]):
				// Http: a single leading capital continues into the
				// following lowercase run as one camelCase word.
				for j < n && isLowerByte(s[j]) {
					j++
				}
			}

			emitRange(start, j)
			i = j

		case isLowerByte(c):
			start := i
			for i < n && isLowerByte(s[i]) {
				i++
			}

			emitRange(start, i)

		default:
			i++
		}
	}
}

// tokenizeUnicode mirrors tokenizeASCII's state machine over runes, for text
// that contains at least one non-ASCII byte.
func tokenizeUnicode(s string, emit func(term string)) {
	runes := []rune(s)
	n := len(runes)
	i := 0

	isAlnumDigit := func(r rune) bool { return unicode.IsDigit(r) }
	isAlnumUpper := func(r rune) bool { return unicode.IsUpper(r) }
	isAlnumLower := func(r rune) bool { return unicode.IsLower(r) || (unicode.IsLetter(r) && !unicode.IsUpper(r)) }

	emitRange := func(start, end int) {
		if end-start < MinTermLen {
			return
		}

		lowered := make([]rune, 0, end-start)
		for k := start; k < end; k++ {
			lowered = append(lowered, unicode.ToLower(runes[k]))
		}

		emit(string(lowered))
	}

	for i < n {
		r := runes[i]

		switch {
		case isAlnumDigit(r):
			start := i
			for i < n && isAlnumDigit(runes[i]) {
				i++
			}

			emitRange(start, i)

		case isAlnumUpper(r):
			start := i
			j := i

			for j < n && isAlnumUpper(runes[j]) {
				j++
			}

			switch {
			case j-start > 1 && j < n && isAlnumLower(runes[j]):
				j--
			case j-start == 1 && j < n && isAlnumLower(runes[j]):
				for j < n && isAlnumLower(runes[j]) {
					j++
				}
			}

			emitRange(start, j)
			i = j

		case isAlnumLower(r):
			start := i
			for i < n && isAlnumLower(runes[i]) {
				i++
			}

			emitRange(start, i)

		default:
			i++
		}
	}
}
