// Package tools defines the tool contract the engine exposes to language
// models and the decorator chain every tool invocation passes through. A tool
// is a named operation with a JSON input schema; the engine never executes
// tools implicitly, it resolves them, decorates them and invokes them one call
// at a time from the tool loop or from structured-output operations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type (
	// Definition is the model-facing description of a tool. The input
	// schema is a JSON Schema document produced by the tool author;
	// the engine treats it as opaque bytes.
	Definition struct {
		// Name identifies the tool in model requests and tool calls.
		Name string
		// Description tells the model when to use the tool.
		Description string
		// InputSchema is the JSON Schema for the call payload.
		InputSchema json.RawMessage
	}

	// Metadata carries engine-facing tool attributes that never reach the
	// model.
	Metadata struct {
		// ReturnDirect marks the tool's result as the terminal answer
		// of the enclosing tool loop: the loop ends immediately after
		// the call instead of handing the result back to the model.
		ReturnDirect bool
		// Group names the tool group the tool was resolved from, empty
		// for standalone tools.
		Group string
		// Extra holds free-form attributes merged from the owning
		// group; tool-declared keys win over group keys.
		Extra map[string]string
	}

	// Tool is an operation a model may request. Implementations must be
	// safe for concurrent calls; per-call state belongs on the context or
	// in the input payload.
	Tool interface {
		// Definition returns the model-facing description.
		Definition() Definition
		// Metadata returns the engine-facing attributes.
		Metadata() Metadata
		// Call executes the tool with a JSON payload matching the
		// input schema. Ordinary failures should be reported as an
		// error Result so the model can react; returned errors are
		// reserved for infrastructure failures and control-flow
		// signals.
		Call(ctx context.Context, input string) (Result, error)
	}

	// Result is the outcome of a tool call: plain text for the model,
	// optionally a typed artifact for the engine, or an error message the
	// model should see.
	Result struct {
		content  string
		artifact any
		isError  bool
	}
)

// Text returns a successful text result.
func Text(content string) Result {
	return Result{content: content}
}

// WithArtifact returns a successful result that carries both the text shown
// to the model and a typed value for engine-side consumers such as the
// blackboard.
func WithArtifact(content string, artifact any) Result {
	return Result{content: content, artifact: artifact}
}

// Errorf returns an error result. The formatted message is what the model
// sees; the call itself is considered handled.
func Errorf(format string, args ...any) Result {
	return Result{content: fmt.Sprintf(format, args...), isError: true}
}

// Content returns the text of the result.
func (r Result) Content() string { return r.content }

// Artifact returns the typed value attached to the result, if any.
func (r Result) Artifact() (any, bool) {
	return r.artifact, r.artifact != nil
}

// IsError reports whether the result represents a handled tool failure.
func (r Result) IsError() bool { return r.isError }

// String renders the result the way it is fed back to the model.
func (r Result) String() string { return r.content }

// WithContent returns a copy of r with the text replaced, preserving the
// artifact and error flag. Output transformers use this to rewrite the text
// without losing the typed payload.
func (r Result) WithContent(content string) Result {
	r.content = content
	return r
}

type funcTool struct {
	def  Definition
	meta Metadata
	fn   func(ctx context.Context, input string) (Result, error)
}

// Func wraps a plain function as a Tool. The schema describes the JSON
// payload the function expects; pass nil for tools that take no input.
func Func(name, description string, schema json.RawMessage, fn func(ctx context.Context, input string) (Result, error)) Tool {
	if schema == nil {
		schema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return &funcTool{
		def: Definition{Name: name, Description: description, InputSchema: schema},
		fn:  fn,
	}
}

// FuncWithMetadata wraps a plain function as a Tool with explicit metadata.
func FuncWithMetadata(name, description string, schema json.RawMessage, meta Metadata, fn func(ctx context.Context, input string) (Result, error)) Tool {
	t := Func(name, description, schema, fn).(*funcTool)
	t.meta = meta
	return t
}

func (t *funcTool) Definition() Definition { return t.def }

func (t *funcTool) Metadata() Metadata { return t.meta }

func (t *funcTool) Call(ctx context.Context, input string) (Result, error) {
	return t.fn(ctx, input)
}
