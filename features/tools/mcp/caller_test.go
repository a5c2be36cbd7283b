package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

// stdioHelperEnv marks the re-executed test binary as the stdio MCP server.
const stdioHelperEnv = "TELOS_MCP_STDIO_HELPER"

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      uint64          `json:"id"`
	Params  json.RawMessage `json:"params"`
}

func TestHTTPCallerCallTool(t *testing.T) {
	ctx, want := contextWithTrace(t)
	var (
		sawHeader string
		sawMeta   string
		sawName   string
		sawArgs   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeWireRequest(t, r.Body)
		switch req.Method {
		case "initialize":
			var params struct {
				ProtocolVersion string `json:"protocolVersion"`
				ClientInfo      struct {
					Name string `json:"name"`
				} `json:"clientInfo"`
			}
			if err := json.Unmarshal(req.Params, &params); err != nil {
				t.Errorf("decode initialize params: %v", err)
			}
			if params.ProtocolVersion != DefaultProtocolVersion {
				t.Errorf("protocolVersion = %q, want %q", params.ProtocolVersion, DefaultProtocolVersion)
			}
			if params.ClientInfo.Name != "telos" {
				t.Errorf("client name = %q, want telos", params.ClientInfo.Name)
			}
			writeWireResult(t, w, req.ID, map[string]any{"protocolVersion": DefaultProtocolVersion})
		case "tools/call":
			sawHeader = r.Header.Get("Traceparent")
			var params struct {
				Name      string            `json:"name"`
				Arguments json.RawMessage   `json:"arguments"`
				Meta      map[string]string `json:"_meta"`
			}
			if err := json.Unmarshal(req.Params, &params); err != nil {
				t.Errorf("decode call params: %v", err)
			}
			sawMeta = params.Meta["traceparent"]
			sawName = params.Name
			sawArgs = string(params.Arguments)
			writeWireResult(t, w, req.ID, toolsCallResult{
				Content: []contentItem{{Type: "text", Text: strPtr(`{"ok":true}`)}},
			})
		default:
			t.Errorf("unexpected method %q", req.Method)
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(ctx, HTTPOptions{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPCaller: %v", err)
	}
	resp, err := caller.CallTool(ctx, CallRequest{Tool: "echo", Payload: json.RawMessage(`{"msg":"hi"}`)})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got := string(resp.Result); got != `{"ok":true}` {
		t.Errorf("result = %s, want {\"ok\":true}", got)
	}
	if resp.IsError {
		t.Error("IsError = true, want false")
	}
	if sawName != "echo" {
		t.Errorf("tool name = %q, want echo", sawName)
	}
	if sawArgs != `{"msg":"hi"}` {
		t.Errorf("arguments = %s, want {\"msg\":\"hi\"}", sawArgs)
	}
	if sawHeader != want {
		t.Errorf("traceparent header = %q, want %q", sawHeader, want)
	}
	if sawMeta != want {
		t.Errorf("_meta traceparent = %q, want %q", sawMeta, want)
	}
}

func TestHTTPCallerToolError(t *testing.T) {
	srv := newRPCServer(t, func(t *testing.T, req wireRequest, w http.ResponseWriter) {
		writeWireResult(t, w, req.ID, toolsCallResult{
			Content: []contentItem{{Type: "text", Text: strPtr("the oven is on fire")}},
			IsError: true,
		})
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPCaller: %v", err)
	}
	resp, err := caller.CallTool(context.Background(), CallRequest{Tool: "bake"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !resp.IsError {
		t.Error("IsError = false, want true")
	}
	if got := string(resp.Result); got != `"the oven is on fire"` {
		t.Errorf("result = %s, want JSON-encoded message", got)
	}
}

func TestHTTPCallerRPCError(t *testing.T) {
	srv := newRPCServer(t, func(t *testing.T, req wireRequest, w http.ResponseWriter) {
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": JSONRPCMethodNotFound, "message": "no such tool"},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("write error response: %v", err)
		}
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPCaller: %v", err)
	}
	_, err = caller.CallTool(context.Background(), CallRequest{Tool: "missing"})
	callerErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if callerErr.Code != JSONRPCMethodNotFound {
		t.Errorf("code = %d, want %d", callerErr.Code, JSONRPCMethodNotFound)
	}
	if callerErr.Message != "no such tool" {
		t.Errorf("message = %q, want no such tool", callerErr.Message)
	}
}

func TestHTTPCallerStructuredContent(t *testing.T) {
	srv := newRPCServer(t, func(t *testing.T, req wireRequest, w http.ResponseWriter) {
		writeWireResult(t, w, req.ID, toolsCallResult{
			Content: []contentItem{{
				Type:     "text",
				Text:     strPtr(`{"temperature":180}`),
				MimeType: strPtr("application/json"),
			}},
		})
	})
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPCaller: %v", err)
	}
	resp, err := caller.CallTool(context.Background(), CallRequest{Tool: "read"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if got := string(resp.Structured); got != `{"temperature":180}` {
		t.Errorf("structured = %s, want the JSON document", got)
	}
}

func TestHTTPCallerListToolsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeWireRequest(t, r.Body)
		switch req.Method {
		case "initialize":
			writeWireResult(t, w, req.ID, map[string]any{})
		case "tools/list":
			var params struct {
				Cursor string `json:"cursor"`
			}
			if len(req.Params) > 0 {
				if err := json.Unmarshal(req.Params, &params); err != nil {
					t.Errorf("decode list params: %v", err)
				}
			}
			if params.Cursor == "" {
				writeWireResult(t, w, req.ID, toolsListResult{
					Tools:      []ToolInfo{{Name: "slice", Description: "cuts things"}},
					NextCursor: "page-2",
				})
				return
			}
			if params.Cursor != "page-2" {
				t.Errorf("cursor = %q, want page-2", params.Cursor)
			}
			writeWireResult(t, w, req.ID, toolsListResult{
				Tools: []ToolInfo{{Name: "stir"}},
			})
		default:
			t.Errorf("unexpected method %q", req.Method)
		}
	}))
	defer srv.Close()

	caller, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPCaller: %v", err)
	}
	infos, err := caller.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}
	if infos[0].Name != "slice" || infos[1].Name != "stir" {
		t.Errorf("tool names = %q, %q; want slice, stir", infos[0].Name, infos[1].Name)
	}
}

func TestHTTPCallerInitializeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPCaller(context.Background(), HTTPOptions{Endpoint: srv.URL})
	if err == nil {
		t.Fatal("NewHTTPCaller succeeded against a failing server")
	}
}

func TestStdioCallerCallTool(t *testing.T) {
	ctx, want := contextWithTrace(t)
	caller, err := NewStdioCaller(ctx, StdioOptions{
		Command:     os.Args[0],
		Args:        []string{"-test.run=TestStdioHelper", "--"},
		Env:         []string{stdioHelperEnv + "=1"},
		InitTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewStdioCaller: %v", err)
	}
	defer func() {
		_ = caller.Close()
	}()

	resp, err := caller.CallTool(ctx, CallRequest{Tool: "trace", Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	var got string
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("decode result %s: %v", resp.Result, err)
	}
	if got != want {
		t.Errorf("traceparent = %q, want %q", got, want)
	}

	infos, err := caller.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "trace" {
		t.Errorf("infos = %+v, want single trace tool", infos)
	}
}

// TestStdioHelper is not a test. The stdio caller tests re-execute the test
// binary with stdioHelperEnv set and speak MCP to it over stdin/stdout.
func TestStdioHelper(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		t.Skip("helper process")
	}
	runStdioHelper()
	os.Exit(0)
}

func runStdioHelper() {
	reader := bufio.NewReader(os.Stdin)
	for {
		frame, err := readFrame(reader)
		if err != nil {
			return
		}
		var req wireRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			continue
		}
		switch req.Method {
		case "initialize":
			writeHelperFrame(req.ID, json.RawMessage(`{}`))
		case "tools/call":
			var params struct {
				Meta map[string]string `json:"_meta"`
			}
			_ = json.Unmarshal(req.Params, &params)
			text, _ := json.Marshal(params.Meta["traceparent"])
			qt := string(text)
			result, _ := json.Marshal(toolsCallResult{
				Content: []contentItem{{Type: "text", Text: &qt}},
			})
			writeHelperFrame(req.ID, result)
		case "tools/list":
			result, _ := json.Marshal(toolsListResult{Tools: []ToolInfo{{Name: "trace"}}})
			writeHelperFrame(req.ID, result)
		}
	}
}

func writeHelperFrame(id uint64, result json.RawMessage) {
	resp := map[string]any{"jsonrpc": "2.0", "id": id, "result": result}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stdout, "Content-Length: %d\r\n\r\n", len(data))
	_, _ = os.Stdout.Write(data)
}

func TestNormalizeToolResultEmpty(t *testing.T) {
	_, err := normalizeToolResult(toolsCallResult{})
	if err == nil {
		t.Fatal("normalizeToolResult accepted empty content")
	}
}

func TestNormalizeToolResultPlainText(t *testing.T) {
	resp, err := normalizeToolResult(toolsCallResult{
		Content: []contentItem{{Type: "text", Text: strPtr("plain words")}},
	})
	if err != nil {
		t.Fatalf("normalizeToolResult: %v", err)
	}
	if got := string(resp.Result); got != `"plain words"` {
		t.Errorf("result = %s, want JSON-encoded string", got)
	}
}

func TestNormalizeToolResultNoText(t *testing.T) {
	_, err := normalizeToolResult(toolsCallResult{
		Content: []contentItem{{Type: "image"}},
	})
	if err == nil {
		t.Fatal("normalizeToolResult accepted textless content")
	}
}

// newRPCServer answers initialize and hands every other request to fn.
func newRPCServer(t *testing.T, fn func(t *testing.T, req wireRequest, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeWireRequest(t, r.Body)
		if req.Method == "initialize" {
			writeWireResult(t, w, req.ID, map[string]any{})
			return
		}
		fn(t, req, w)
	}))
}

func decodeWireRequest(t *testing.T, body io.Reader) wireRequest {
	t.Helper()
	var req wireRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return req
}

func writeWireResult(t *testing.T, w http.ResponseWriter, id uint64, result any) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Errorf("marshal result: %v", err)
		return
	}
	resp := map[string]any{"jsonrpc": "2.0", "id": id, "result": json.RawMessage(data)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func contextWithTrace(t *testing.T) (context.Context, string) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("span id: %v", err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	return ctx, fmt.Sprintf("00-%s-%s-01", traceID, spanID)
}

func strPtr(s string) *string { return &s }
