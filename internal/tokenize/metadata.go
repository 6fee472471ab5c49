package tokenize

import (
	"bufio"
	"strconv"
	"strings"
)

// Link is a narrative cross-reference to another entry, resolved by topic
// name and the index of the entry within that topic at write time.
type Link struct {
	Topic string
	Index int
}

// Metadata holds the structured leading-line attributes of an entry body.
type Metadata struct {
	Tags       []string
	SourcePath string
	SourceLine int // 0 when unset
	Confidence float64
	Links      []Link
	// Passthrough holds any "[key: ...]" lines that matched the bracket
	// syntax but not a recognized key, preserved verbatim and in order.
	Passthrough []string
}

// DefaultConfidence is used when no "[confidence: N]" line is present.
const DefaultConfidence = 1.0

// ParseMetadata consumes the leading run of bracketed metadata lines from
// body and returns the parsed Metadata plus the remaining body text.
// Parsing is single-pass and stops at the first line that is not a
// "[key: ...]" line.
func ParseMetadata(body string) (Metadata, string) {
	meta := Metadata{Confidence: DefaultConfidence}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var consumed int

	for scanner.Scan() {
		line := scanner.Text()

		key, value, ok := parseBracketLine(line)
		if !ok {
			break
		}

		switch strings.ToLower(key) {
		case "tags":
			meta.Tags = parseTags(value)
		case "source":
			meta.SourcePath, meta.SourceLine = parseSource(value)
		case "confidence":
			meta.Confidence = parseConfidence(value)
		case "links":
			meta.Links = parseLinks(value)
		default:
			meta.Passthrough = append(meta.Passthrough, line)
		}

		consumed += len(line) + 1 // +1 for the newline the scanner consumed
	}

	if consumed > len(body) {
		consumed = len(body)
	}

	return meta, body[consumed:]
}

// parseBracketLine recognizes a "[key: value]" line, trimming surrounding
// whitespace from both key and value. ok is false for any line that isn't
// shaped like a bracketed metadata line.
func parseBracketLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return "", "", false
	}

	inner := trimmed[1 : len(trimmed)-1]

	k, v, found := strings.Cut(inner, ":")
	if !found {
		return "", "", false
	}

	return strings.TrimSpace(k), strings.TrimSpace(v), true
}

func parseTags(value string) []string {
	parts := strings.Split(value, ",")
	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))

	for _, p := range parts {
		tag := strings.ToLower(strings.TrimSpace(p))
		if tag == "" {
			continue
		}

		if _, dup := seen[tag]; dup {
			continue
		}

		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	return tags
}

func parseSource(value string) (path string, line int) {
	path, lineStr, found := strings.Cut(value, ":")
	if !found {
		return strings.TrimSpace(value), 0
	}

	n, err := strconv.Atoi(strings.TrimSpace(lineStr))
	if err != nil {
		return strings.TrimSpace(path), 0
	}

	return strings.TrimSpace(path), n
}

func parseConfidence(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return DefaultConfidence
	}

	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// StoreOptions carries the structured attributes a caller can attach to a
// new entry; RenderMetadata turns them into the bracketed leading lines
// ParseMetadata later strips back off.
type StoreOptions struct {
	Tags       []string
	SourcePath string
	SourceLine int
	Confidence float64 // 0 means "unset", callers should use DefaultConfidence
	Links      []Link
}

// RenderMetadata prepends opts' bracketed metadata lines to text, producing
// the body exactly as ParseMetadata expects to find it (spec §4.I step 2).
func RenderMetadata(opts StoreOptions, text string) string {
	var b strings.Builder

	if len(opts.Tags) > 0 {
		b.WriteString("[tags: ")
		b.WriteString(strings.Join(opts.Tags, ", "))
		b.WriteString("]\n")
	}

	if opts.SourcePath != "" {
		b.WriteString("[source: ")
		b.WriteString(opts.SourcePath)
		if opts.SourceLine > 0 {
			b.WriteString(":")
			b.WriteString(strconv.Itoa(opts.SourceLine))
		}
		b.WriteString("]\n")
	}

	if opts.Confidence > 0 && opts.Confidence != DefaultConfidence {
		b.WriteString("[confidence: ")
		b.WriteString(strconv.FormatFloat(opts.Confidence, 'g', -1, 64))
		b.WriteString("]\n")
	}

	if len(opts.Links) > 0 {
		b.WriteString("[links: ")
		for i, l := range opts.Links {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(l.Topic)
			b.WriteString(":")
			b.WriteString(strconv.Itoa(l.Index))
		}
		b.WriteString("]\n")
	}

	b.WriteString(text)

	return b.String()
}

func parseLinks(value string) []Link {
	fields := strings.Fields(value)
	links := make([]Link, 0, len(fields))

	for _, f := range fields {
		topic, idxStr, found := strings.Cut(f, ":")
		if !found {
			continue
		}

		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}

		links = append(links, Link{Topic: strings.ToLower(topic), Index: idx})
	}

	return links
}
