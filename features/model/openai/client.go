// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates engine requests into ChatCompletion
// calls using github.com/sashabaranov/go-openai and maps responses (text,
// tool calls, usage) back into the generic model structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/telos-ai/telos/model"
)

// emptyObjectSchema is sent for tools that declare no input schema. The Chat
// Completions API requires function parameters to be a JSON schema object.
const emptyObjectSchema = `{"type":"object","properties":{}}`

type (
	// ChatClient captures the subset of the go-openai client used by the
	// adapter. It is satisfied by *openai.Client so callers can pass either
	// a real client or a stub in tests.
	ChatClient interface {
		CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	}

	// Options configures optional adapter behavior.
	Options struct {
		// DefaultModel is the model identifier (for example "gpt-4o")
		// used when model.Request.Model is empty.
		DefaultModel string

		// MaxTokens sets the completion cap when a request does not
		// specify MaxTokens. Zero leaves the provider default in place.
		MaxTokens int

		// Temperature is used when a request does not specify one.
		Temperature float64
	}

	// Client implements model.Client on top of OpenAI Chat Completions.
	Client struct {
		chat         ChatClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the provided chat client and
// configuration options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(openai.NewClient(apiKey), opts)
}

// Complete sends the request through the Chat Completions API and translates
// the response. Chat Completions supports best-of sampling natively, so
// Candidates maps to the request "n" parameter and each returned choice
// becomes one candidate.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	chatReq, provToCanon, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.CreateChatCompletion(ctx, *chatReq)
	if err != nil {
		if rl := classifyRateLimit(err); rl != nil {
			return nil, rl
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp, provToCanon, chatReq.Model)
}

func (c *Client) prepareRequest(req model.Request) (*openai.ChatCompletionRequest, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: request requires at least one message")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, nil, errors.New("openai: no model specified and no default configured")
	}

	toolList, canonToProv, provToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	messages, err := encodeMessages(req.Messages, canonToProv)
	if err != nil {
		return nil, nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
	}
	if len(toolList) > 0 {
		chatReq.Tools = toolList
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else if c.maxTok > 0 {
		chatReq.MaxTokens = c.maxTok
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	} else if c.temp > 0 {
		chatReq.Temperature = float32(c.temp)
	}
	if req.Candidates > 1 {
		chatReq.N = req.Candidates
	}
	return &chatReq, provToCanon, nil
}

func encodeMessages(msgs []model.Message, canonToProv map[string]string) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if m.Content == "" {
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case model.RoleUser:
			if m.Content == "" {
				continue
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		case model.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				if tc.Name == "" {
					return nil, errors.New("openai: tool call missing name")
				}
				name := tc.Name
				if sanitized, ok := canonToProv[name]; ok && sanitized != "" {
					name = sanitized
				} else {
					name = sanitizeToolName(name)
				}
				args := tc.Input
				if args == "" {
					args = "{}"
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      name,
						Arguments: args,
					},
				})
			}
			if oaiMsg.Content == "" && len(oaiMsg.ToolCalls) == 0 {
				continue
			}
			out = append(out, oaiMsg)
		case model.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one user or assistant message is required")
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) ([]openai.Tool, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]openai.Tool, 0, len(defs))
	canonToProv := make(map[string]string, len(defs))
	provToCanon := make(map[string]string, len(defs))

	for _, def := range defs {
		canonical := def.Name
		if canonical == "" {
			continue
		}
		sanitized := sanitizeToolName(canonical)
		if prev, ok := provToCanon[sanitized]; ok && prev != canonical {
			return nil, nil, nil, fmt.Errorf(
				"openai: tool name %q sanitizes to %q which collides with %q",
				canonical, sanitized, prev,
			)
		}
		provToCanon[sanitized] = canonical
		canonToProv[canonical] = sanitized

		params := json.RawMessage(def.InputSchema)
		if len(params) == 0 {
			params = json.RawMessage(emptyObjectSchema)
		}
		toolList = append(toolList, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        sanitized,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return toolList, canonToProv, provToCanon, nil
}

// classifyRateLimit reports HTTP 429 responses as a model.RateLimitError so
// retry middleware can react.
func classifyRateLimit(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &model.RateLimitError{Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &model.RateLimitError{Err: err}
	}
	return nil
}

func translateResponse(resp openai.ChatCompletionResponse, provToCanon map[string]string, modelID string) (*model.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contains no choices")
	}
	candidates := make([]model.Message, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		msg := model.Message{
			Role:    model.RoleAssistant,
			Content: choice.Message.Content,
		}
		for _, call := range choice.Message.ToolCalls {
			name := call.Function.Name
			if canonical, ok := provToCanon[name]; ok {
				name = canonical
			}
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:    call.ID,
				Name:  name,
				Input: call.Function.Arguments,
			})
		}
		candidates = append(candidates, msg)
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = modelID
	}
	return &model.Response{
		Candidates: candidates,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		StopReason: translateFinishReason(resp.Choices[0].FinishReason),
		Model:      respModel,
	}, nil
}

func translateFinishReason(reason openai.FinishReason) model.StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return model.StopEndTurn
	case openai.FinishReasonToolCalls:
		return model.StopToolUse
	case openai.FinishReasonLength:
		return model.StopMaxTokens
	default:
		return model.StopOther
	}
}

// sanitizeToolName maps a tool identifier to the characters the Chat
// Completions API allows for function names by replacing any disallowed rune
// with '_'.
func sanitizeToolName(in string) string {
	if in == "" || isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
