// Package mcp adapts Model Context Protocol servers into engine tools.
// Callers speak JSON-RPC over HTTP or a stdio subprocess; Toolset discovers
// the server's tools via tools/list and wraps each one as a tools.Tool whose
// Call round-trips tools/call.
package mcp

import (
	"context"
	"encoding/json"
)

const (
	// JSON-RPC canonical error codes per spec.
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Caller invokes MCP tools. It is implemented by the transport-specific
// clients (HTTP, stdio) and by CallerFunc for tests.
type Caller interface {
	CallTool(ctx context.Context, req CallRequest) (CallResponse, error)
}

// Lister discovers the tools an MCP server exposes. Both built-in callers
// implement it.
type Lister interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
}

// CallerFunc adapts a function to implement Caller.
type CallerFunc func(ctx context.Context, req CallRequest) (CallResponse, error)

// CallTool implements Caller.
func (f CallerFunc) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	return f(ctx, req)
}

// Error represents a JSON-RPC error returned by the MCP server.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// CallRequest describes one tool invocation.
type CallRequest struct {
	// Tool is the MCP-local tool name as listed by the server.
	Tool string
	// Payload is the JSON-encoded tool arguments.
	Payload json.RawMessage
}

// CallResponse captures the normalized MCP tool result.
type CallResponse struct {
	// Result is the JSON payload returned by the server. Plain text
	// content arrives JSON-encoded.
	Result json.RawMessage
	// Structured carries the structured content blob when the server
	// marked the result as application/json.
	Structured json.RawMessage
	// IsError reports a tool-level failure the model should see, as
	// opposed to a protocol error.
	IsError bool
}

// ToolInfo describes one tool as advertised by tools/list.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}
