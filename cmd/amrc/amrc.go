// Command amrc builds as a C shared/archive library (cgo -buildmode=c-shared
// or c-archive) exporting the stable C ABI over the read-side of the
// engine: open/close an index handle, check and refresh staleness, hash a
// term the way the index does, and run a search either by pre-hashed term
// hashes or by a raw query string. None of these calls touch data.log
// directly; they only ever map and read index.bin.
//
// Handles are small integer tokens into a Go-side table rather than raw Go
// pointers, since passing a Go pointer across the cgo boundary invites the
// runtime to collect or move the object underneath the caller.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint16_t entry_id;
	uint32_t score_x1000;
} amr_result;
*/
import "C"

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/delfador0x42/amaranthine/internal/index"
	"github.com/delfador0x42/amaranthine/internal/rank"
	"github.com/delfador0x42/amaranthine/internal/record"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// logFileName is fixed by the on-disk layout (spec §6): every index.bin
// has a data.log sibling in the same directory.
const logFileName = "data.log"

type session struct {
	mu      sync.Mutex
	reader  *index.Reader
	logPath string
}

var (
	sessionsMu sync.Mutex
	sessions   = map[C.uint64_t]*session{}
	nextHandle C.uint64_t = 1
)

func register(s *session) C.uint64_t {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	h := nextHandle
	nextHandle++
	sessions[h] = s

	return h
}

func lookup(h C.uint64_t) *session {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	return sessions[h]
}

func unregister(h C.uint64_t) *session {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	s := sessions[h]
	delete(sessions, h)

	return s
}

// amr_open maps index_path and returns an opaque handle, or 0 on failure
// (bad magic, version mismatch, missing file).
//
//export amr_open
func amr_open(indexPath *C.char) C.uint64_t {
	path := C.GoString(indexPath)

	r, err := index.Open(path)
	if err != nil {
		return 0
	}

	s := &session{
		reader:  r,
		logPath: filepath.Join(filepath.Dir(path), logFileName),
	}

	return register(s)
}

// amr_close unmaps the index and invalidates the handle. Snippet pointers
// previously returned by amr_snippet are dangling after this call.
//
//export amr_close
func amr_close(h C.uint64_t) {
	s := unregister(h)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.reader.Close()
}

// amr_is_stale reports whether data.log has been modified since h's index
// was built, by comparing mtimes; it never reads the log itself. Returns 1
// if the handle is unknown or the log is unreadable, so callers default to
// treating an unstable handle as due for a reload.
//
//export amr_is_stale
func amr_is_stale(h C.uint64_t) C.int {
	s := lookup(h)
	if s == nil {
		return 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.logPath)
	if err != nil {
		return 1
	}

	if s.reader.IsStale(info.ModTime()) {
		return 1
	}

	return 0
}

// amr_reload remaps index.bin in place. Existing amr_snippet pointers for
// this handle become invalid the instant this returns 0.
//
//export amr_reload
func amr_reload(h C.uint64_t) C.int {
	s := lookup(h)
	if s == nil {
		return -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reader.Reload(); err != nil {
		return -1
	}

	return 0
}

// amr_hash exposes the same FNV-1a term hash the index is keyed on, so a
// caller holding a term string can precompute hashes for amr_search_raw.
//
//export amr_hash
func amr_hash(term *C.char) C.uint64_t {
	return C.uint64_t(record.HashTerm(C.GoString(term)))
}

// amr_search_raw scores up to n pre-hashed term hashes and writes at most
// limit results into out, highest score first. Returns the number of
// results written, or 0 for an unknown handle or empty hash list.
//
//export amr_search_raw
func amr_search_raw(h C.uint64_t, hashes *C.uint64_t, n C.uint32_t, out *C.amr_result, limit C.uint32_t) C.uint32_t {
	s := lookup(h)
	if s == nil || n == 0 || limit == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in := unsafe.Slice((*uint64)(unsafe.Pointer(hashes)), int(n))
	termHashes := make([]uint64, len(in))
	copy(termHashes, in)

	hits := rank.SearchByHashes(s.reader, termHashes, rank.ModeAuto, int(limit))
	if len(hits) == 0 {
		return 0
	}

	dst := unsafe.Slice(out, int(limit))
	for i, hit := range hits {
		dst[i] = C.amr_result{
			entry_id:    C.uint16_t(hit.EntryID),
			score_x1000: C.uint32_t(hit.Score * 1000),
		}
	}

	return C.uint32_t(len(hits))
}

// amr_snippet returns a pointer into the mapped index plus its length. The
// pointer aliases the mmap and stays byte-identical until amr_reload or
// amr_close is called on the same handle (spec §8 property 7); it must not
// be freed by the caller.
//
//export amr_snippet
func amr_snippet(h C.uint64_t, entryID C.uint16_t, outLen *C.uint32_t) *C.uint8_t {
	s := lookup(h)
	if s == nil {
		*outLen = 0
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.reader.EntryMeta(uint16(entryID))

	raw := s.reader.RawSnippetBytes(meta)
	if len(raw) == 0 {
		*outLen = 0
		return nil
	}

	*outLen = C.uint32_t(len(raw))

	return (*C.uint8_t)(unsafe.Pointer(&raw[0]))
}

type searchHit struct {
	EntryID uint16  `json:"entry_id"`
	Topic   string  `json:"topic"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// amr_search tokenizes query the same way the CLI does, runs a full BM25
// search with topic/tag boosts, and returns the results as a JSON array.
// The caller owns the returned string and must release it with
// amr_free_str.
//
//export amr_search
func amr_search(h C.uint64_t, query *C.char, limit C.uint32_t) *C.char {
	s := lookup(h)
	if s == nil {
		return C.CString("[]")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	terms := tokenize.TokenizeQuery(C.GoString(query))
	hits := rank.Search(s.reader, terms, rank.ModeAuto, int(limit))

	out := make([]searchHit, len(hits))
	for i, hit := range hits {
		meta := s.reader.EntryMeta(hit.EntryID)
		out[i] = searchHit{
			EntryID: hit.EntryID,
			Topic:   s.reader.TopicName(meta.TopicID),
			Score:   hit.Score,
			Snippet: s.reader.Snippet(meta),
		}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return C.CString("[]")
	}

	return C.CString(string(body))
}

// amr_free_str releases a string returned by amr_search.
//
//export amr_free_str
func amr_free_str(s *C.char) {
	C.free(unsafe.Pointer(s))
}

func main() {}
