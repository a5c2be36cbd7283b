// Package run carries the ambient identity of the agent process executing the
// current call stack. Tool implementations and decorators discover "which
// process am I in" through the context rather than through global state: the
// ProcessBinding decorator derives a child context with the handle installed,
// so restoration on every exit path is structural.
package run

import (
	"context"

	"github.com/telos-ai/telos/blackboard"
)

// Handle is the view of an agent process available to code running inside one
// of its tool or action invocations.
type Handle interface {
	// ID returns the process identifier.
	ID() string
	// AgentName returns the name of the agent definition the process runs.
	AgentName() string
	// Board returns the process blackboard.
	Board() *blackboard.Blackboard
}

// Recorder is optionally implemented by process handles that keep the last
// assistant message for their result. Callers that produce assistant text
// (structured-output operations, tool loops) upgrade the handle with a type
// assertion and record through it when present.
type Recorder interface {
	RecordAssistant(text string)
}

// RecordAssistant forwards text to h when h implements Recorder. Safe to call
// with a nil handle or empty text.
func RecordAssistant(h Handle, text string) {
	if h == nil || text == "" {
		return
	}
	if r, ok := h.(Recorder); ok {
		r.RecordAssistant(text)
	}
}

type ctxKey struct{}

// NewContext returns a child of ctx carrying h.
func NewContext(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// FromContext returns the process handle installed by the innermost
// ProcessBinding decorator, if any.
func FromContext(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(ctxKey{}).(Handle)
	return h, ok
}
