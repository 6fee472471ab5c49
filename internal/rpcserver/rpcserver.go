// Package rpcserver implements the line-delimited JSON-RPC tool server
// over stdin/stdout (spec §6): one JSON object per line in, one per line
// out, methods dispatched to the engine.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/delfador0x42/amaranthine/internal/datalog"
	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/rank"
	"github.com/delfador0x42/amaranthine/internal/tokenize"
)

// Reserved JSON-RPC error code range for amaranthine-specific errors
// (spec §7: "the RPC surface maps to JSON-RPC error objects with codes in
// a reserved range").
const (
	codeNotFound     = -32001
	codeInvalidInput = -32002
	codeIndexFull    = -32003
	codeLockBusy     = -32004
	codeInternal     = -32000
)

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result *toolResult      `json:"result,omitempty"`
	Error  *rpcError        `json:"error,omitempty"`
}

type toolResult struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server dispatches line-delimited JSON-RPC requests to an Engine.
type Server struct {
	eng    *engine.Engine
	logger *zap.Logger
}

// New returns a Server backed by eng. logger may be nil.
func New(eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{eng: eng, logger: logger}
}

// Serve reads one JSON-RPC request per line from r and writes one response
// per line to w, until r reaches EOF.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := s.handleLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("rpcserver: writing response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("rpcserver: reading request: %w", err)
	}

	return nil
}

func (s *Server) handleLine(ctx context.Context, line string) response {
	reqID := uuid.NewString()

	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.logger.Warn("malformed request", zap.String("correlation_id", reqID), zap.Error(err))
		return response{Error: &rpcError{Code: codeInvalidInput, Message: "malformed request: " + err.Error()}}
	}

	resp := response{ID: req.ID}

	text, err := s.dispatch(ctx, req.Params.Name, req.Params.Arguments)
	if err != nil {
		s.logger.Info("tool call failed",
			zap.String("correlation_id", reqID), zap.String("tool", req.Params.Name), zap.Error(err))
		resp.Error = toRPCError(err)

		return resp
	}

	resp.Result = &toolResult{Content: []contentBlock{{Type: "text", Text: text}}}

	return resp
}

func toRPCError(err error) *rpcError {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, engine.ErrIndexFull):
		return &rpcError{Code: codeIndexFull, Message: err.Error()}
	case errors.Is(err, engine.ErrInvalidInput):
		return &rpcError{Code: codeInvalidInput, Message: err.Error()}
	case errors.Is(err, datalog.ErrLockBusy):
		return &rpcError{Code: codeLockBusy, Message: err.Error()}
	default:
		return &rpcError{Code: codeInternal, Message: err.Error()}
	}
}

func (s *Server) dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	switch name {
	case "store":
		return s.handleStore(ctx, rawArgs)
	case "search":
		return s.handleSearch(rawArgs)
	case "delete":
		return s.handleDelete(ctx, rawArgs)
	case "update":
		return s.handleUpdate(ctx, rawArgs)
	case "get_entry":
		return s.handleGetEntry(rawArgs)
	case "list_topics":
		return s.handleListTopics()
	case "stats":
		return s.handleStats()
	case "rebuild_index":
		return s.handleRebuildIndex(ctx)
	default:
		return "", fmt.Errorf("%w: unknown tool %q", engine.ErrInvalidInput, name)
	}
}

type storeArgs struct {
	Topic      string   `json:"topic"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags,omitempty"`
	Source     string   `json:"source,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

func (s *Server) handleStore(ctx context.Context, raw json.RawMessage) (string, error) {
	var args storeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInvalidInput, err)
	}

	opts := tokenize.StoreOptions{Tags: args.Tags, Confidence: args.Confidence}
	opts.SourcePath = args.Source

	result, err := s.eng.Store(ctx, args.Topic, args.Text, opts, truncatedUnixMinutes())
	if err != nil {
		return "", err
	}

	if result.Warning != nil {
		return fmt.Sprintf("stored at offset %d (warning: %.0f%% similar to entry at offset %d)",
			result.Offset, result.Warning.Similarity*100, result.Warning.SimilarToOffset), nil
	}

	return fmt.Sprintf("stored at offset %d", result.Offset), nil
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Topic string `json:"topic,omitempty"`
}

func (s *Server) handleSearch(raw json.RawMessage) (string, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInvalidInput, err)
	}

	if args.Limit <= 0 {
		args.Limit = 10
	}

	r, err := s.eng.OpenIndex()
	if err != nil {
		return "", err
	}
	defer r.Close()

	hits := rank.Search(r, tokenize.TokenizeQuery(args.Query), rank.ModeAuto, args.Limit)

	var b strings.Builder
	for _, h := range hits {
		meta := r.EntryMeta(h.EntryID)
		topic := r.TopicName(meta.TopicID)

		if args.Topic != "" && topic != args.Topic {
			continue
		}

		fmt.Fprintf(&b, "[%s] (%.3f) %s\n", topic, h.Score, r.Snippet(meta))
	}

	return b.String(), nil
}

type selectorArgs struct {
	Offset int64 `json:"offset"`
}

func (s *Server) handleDelete(ctx context.Context, raw json.RawMessage) (string, error) {
	var args selectorArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInvalidInput, err)
	}

	if err := s.eng.Delete(ctx, args.Offset); err != nil {
		return "", err
	}

	return "deleted", nil
}

type updateArgs struct {
	Offset int64  `json:"offset"`
	Topic  string `json:"topic"`
	Text   string `json:"text"`
}

func (s *Server) handleUpdate(ctx context.Context, raw json.RawMessage) (string, error) {
	var args updateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInvalidInput, err)
	}

	result, err := s.eng.Update(ctx, args.Offset, args.Topic, args.Text, tokenize.StoreOptions{}, truncatedUnixMinutes())
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("updated, new offset %d", result.Offset), nil
}

func (s *Server) handleGetEntry(raw json.RawMessage) (string, error) {
	var args selectorArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInvalidInput, err)
	}

	snap, err := s.eng.Snapshot()
	if err != nil {
		return "", err
	}

	for _, e := range snap.Entries {
		if e.Offset == args.Offset {
			return fmt.Sprintf("[%s] %s", e.Topic.String(), e.Body), nil
		}
	}

	return "", fmt.Errorf("%w: entry at offset %d", engine.ErrNotFound, args.Offset)
}

func (s *Server) handleListTopics() (string, error) {
	snap, err := s.eng.Snapshot()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, name := range snap.TopicNames() {
		fmt.Fprintf(&b, "%s: %d\n", name, len(snap.ByTopic[name]))
	}

	return b.String(), nil
}

func (s *Server) handleStats() (string, error) {
	snap, err := s.eng.Snapshot()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%d entries across %d topics", len(snap.Entries), snap.TopicCount()), nil
}

func (s *Server) handleRebuildIndex(ctx context.Context) (string, error) {
	if err := s.eng.RebuildIndex(ctx); err != nil {
		return "", err
	}

	return "index rebuilt", nil
}

// truncatedUnixMinutes returns the current time as minutes since the Unix
// epoch, the unit ts_min is stored in throughout the log and index.
func truncatedUnixMinutes() int32 {
	return int32(time.Now().Unix() / 60)
}
