package rpcserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/rpcserver"
)

type rpcResp struct {
	Result *struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func serveOne(t *testing.T, eng *engine.Engine, line string) rpcResp {
	t.Helper()

	s := rpcserver.New(eng, nil)

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(line+"\n"), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resp rpcResp
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (raw: %s)", err, out.String())
	}

	return resp
}

func Test_Store_Tool_Call_Succeeds_When_Invoked(t *testing.T) {
	t.Parallel()

	eng, err := engine.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resp := serveOne(t, eng, `{"id":"1","method":"tools/call","params":{"name":"store","arguments":{"topic":"go","text":"goroutines are cheap"}}}`)

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil || len(resp.Result.Content) == 0 {
		t.Fatal("expected non-empty result content")
	}
}

func Test_Unknown_Tool_Returns_Invalid_Input_Error_When_Invoked(t *testing.T) {
	t.Parallel()

	eng, err := engine.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	resp := serveOne(t, eng, `{"id":"1","method":"tools/call","params":{"name":"nonsense","arguments":{}}}`)

	if resp.Error == nil {
		t.Fatal("expected an error for an unknown tool")
	}
	if resp.Error.Code != -32002 {
		t.Fatalf("code = %d, want -32002", resp.Error.Code)
	}
}

func Test_Search_After_Store_Returns_Snippet_When_Invoked(t *testing.T) {
	t.Parallel()

	eng, err := engine.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	serveOne(t, eng, `{"id":"1","method":"tools/call","params":{"name":"store","arguments":{"topic":"rust","text":"always pack structs for ffi"}}}`)

	resp := serveOne(t, eng, `{"id":"2","method":"tools/call","params":{"name":"search","arguments":{"query":"ffi"}}}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if !strings.Contains(resp.Result.Content[0].Text, "rust") {
		t.Fatalf("expected search result to mention topic rust, got %q", resp.Result.Content[0].Text)
	}
}
