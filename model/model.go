// Package model defines the provider-agnostic LLM contract. A Client performs
// a single completion: it receives the conversation and the available tool
// definitions, and returns one or more candidate assistant messages. Clients
// never execute tools; tool call requests surface in the returned messages
// and the caller decides what to do with them.
//
// Provider adapters live under features/model. The Registry routes lookups by
// exact model name or by symbolic tier ("best", "cheapest", "fastest").
package model

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleSystem marks instructions that frame the conversation.
	RoleSystem Role = "system"
	// RoleUser marks caller-provided content.
	RoleUser Role = "user"
	// RoleAssistant marks model output, including tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool execution result fed back to the model.
	RoleTool Role = "tool"
)

type (
	// Message is one entry in a conversation history.
	Message struct {
		Role    Role
		Content string
		// ToolCalls holds tool invocation requests. Only assistant
		// messages carry them.
		ToolCalls []ToolCall
		// ToolCallID and ToolName link a RoleTool message back to the
		// assistant request it answers.
		ToolCallID string
		ToolName   string
	}

	// ToolCall is a request by the model to invoke a named tool with a JSON
	// encoded input payload.
	ToolCall struct {
		ID    string
		Name  string
		Input string
	}

	// ToolDefinition describes a tool to the model. InputSchema is a JSON
	// Schema document.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema json.RawMessage
	}

	// Request is a single completion request.
	Request struct {
		// Model optionally pins a provider-specific model identifier.
		// Adapters fall back to their configured default when empty.
		Model    string
		Messages []Message
		Tools    []ToolDefinition
		// Temperature is optional; nil means provider default.
		Temperature *float64
		MaxTokens   int
		// Candidates asks the provider for that many alternative
		// generations. Zero means one. Providers that cannot comply
		// return a single candidate.
		Candidates int
	}

	// Response carries everything a provider returned for one request.
	// Candidates has at least one entry; callers fold multiple candidates
	// or take the first.
	Response struct {
		Candidates []Message
		Usage      TokenUsage
		StopReason StopReason
		Model      string
	}

	// TokenUsage accumulates token counts across calls.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Client is implemented by provider adapters and middleware.
type Client interface {
	// Complete performs one model call. It must not execute tools.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// SystemMessage returns a RoleSystem message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a RoleUser message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns a RoleAssistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage returns a RoleTool message answering the tool call with
// the given ID.
func ToolResultMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: toolName}
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// First returns the first candidate message, or a zero Message when the
// response is empty.
func (r *Response) First() Message {
	if r == nil || len(r.Candidates) == 0 {
		return Message{}
	}
	return r.Candidates[0]
}
