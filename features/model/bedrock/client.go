// Package bedrock provides a model.Client implementation backed by the AWS
// Bedrock Converse API. It translates engine requests into
// bedrockruntime.Converse calls and maps responses (text, tool use, usage)
// back into the generic model structures.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/telos-ai/telos/model"
)

// defaultMaxTokens caps completions when neither the request nor the options
// specify a limit.
const defaultMaxTokens = 1024

type (
	// RuntimeClient captures the subset of the Bedrock runtime client used
	// by the adapter. It is satisfied by *bedrockruntime.Client so callers
	// can pass either a real client or a stub in tests.
	RuntimeClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures optional adapter behavior.
	Options struct {
		// DefaultModel is the Bedrock model identifier (for example
		// "anthropic.claude-sonnet-4-5-20250929-v1:0") used when
		// model.Request.Model is empty.
		DefaultModel string

		// MaxTokens sets the completion cap when a request does not
		// specify MaxTokens. Zero means defaultMaxTokens.
		MaxTokens int

		// Temperature is used when a request does not specify one.
		Temperature float64
	}

	// Client implements model.Client on top of the Bedrock Converse API.
	Client struct {
		runtime      RuntimeClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds a Bedrock-backed model client from the provided runtime client
// and configuration options.
func New(rt RuntimeClient, opts Options) (*Client, error) {
	if rt == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = defaultMaxTokens
	}
	return &Client{
		runtime:      rt,
		defaultModel: opts.DefaultModel,
		maxTok:       maxTok,
		temp:         opts.Temperature,
	}, nil
}

// NewFromConfig builds a Bedrock-backed model client from an AWS SDK
// configuration, typically loaded with config.LoadDefaultConfig.
func NewFromConfig(cfg aws.Config, opts Options) (*Client, error) {
	return New(bedrockruntime.NewFromConfig(cfg), opts)
}

// Complete sends the request through the Converse API and translates the
// response. Converse returns a single generation, so Candidates always has
// length one on success.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	input, provToCanon, err := c.prepareInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if rl := classifyRateLimit(err); rl != nil {
			return nil, rl
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(out, provToCanon, aws.ToString(input.ModelId))
}

func (c *Client) prepareInput(req model.Request) (*bedrockruntime.ConverseInput, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("bedrock: request requires at least one message")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, nil, errors.New("bedrock: no model specified and no default configured")
	}

	toolCfg, canonToProv, provToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, system, err := encodeMessages(req.Messages, canonToProv)
	if err != nil {
		return nil, nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: msgs,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolCfg != nil {
		input.ToolConfig = toolCfg
	}
	input.InferenceConfig = c.inferenceConfig(req)
	return input, provToCanon, nil
}

func (c *Client) inferenceConfig(req model.Request) *brtypes.InferenceConfiguration {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	cfg := &brtypes.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	} else if c.temp > 0 {
		cfg.Temperature = aws.Float32(float32(c.temp))
	}
	return cfg
}

func encodeMessages(msgs []model.Message, canonToProv map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, 1)

	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case model.RoleUser:
			if m.Content == "" {
				continue
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case model.RoleAssistant:
			blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				if tc.Name == "" {
					return nil, nil, errors.New("bedrock: tool call missing name")
				}
				name := tc.Name
				if sanitized, ok := canonToProv[name]; ok && sanitized != "" {
					name = sanitized
				} else {
					name = sanitizeToolName(name)
				}
				doc, err := toDocument(json.RawMessage(tc.Input))
				if err != nil {
					return nil, nil, fmt.Errorf("bedrock: tool call %q input: %w", tc.Name, err)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(name),
					Input:     doc,
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: blocks,
			})
		case model.RoleTool:
			// Tool results ride in user messages per the Converse API.
			conversation = append(conversation, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content: []brtypes.ToolResultContentBlock{
						&brtypes.ToolResultContentBlockMemberText{Value: m.Content},
					},
				}}},
			})
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user or assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(defs []model.ToolDefinition) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
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
				"bedrock: tool name %q sanitizes to %q which collides with %q",
				canonical, sanitized, prev,
			)
		}
		provToCanon[sanitized] = canonical
		canonToProv[canonical] = sanitized

		schemaDoc, err := toDocument(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bedrock: tool %q schema: %w", canonical, err)
		}
		spec := brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schemaDoc},
		}
		if def.Description != "" {
			spec.Description = aws.String(def.Description)
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, canonToProv, provToCanon, nil
}

// toDocument converts raw JSON into a smithy document. Empty input becomes an
// empty object schema since Converse requires tool inputs to be objects.
func toDocument(raw json.RawMessage) (document.Interface, error) {
	var v any
	if len(raw) == 0 {
		v = map[string]any{"type": "object", "properties": map[string]any{}}
		return document.NewLazyDocument(&v), nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(&v), nil
}

func decodeDocument(doc document.Interface) string {
	if doc == nil {
		return ""
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return ""
	}
	return string(data)
}

// classifyRateLimit reports Bedrock throttling as a model.RateLimitError so
// retry middleware can react. Both the modeled throttling exceptions and raw
// HTTP 429 responses qualify.
func classifyRateLimit(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return &model.RateLimitError{Err: err}
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusTooManyRequests {
		return &model.RateLimitError{Err: err}
	}
	return nil
}

func translateResponse(out *bedrockruntime.ConverseOutput, provToCanon map[string]string, modelID string) (*model.Response, error) {
	if out == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected converse output %T", out.Output)
	}

	assistant := model.Message{Role: model.RoleAssistant}
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value == "" {
				continue
			}
			if assistant.Content != "" {
				assistant.Content += "\n"
			}
			assistant.Content += v.Value
		case *brtypes.ContentBlockMemberToolUse:
			name := aws.ToString(v.Value.Name)
			if canonical, ok := provToCanon[name]; ok {
				name = canonical
			}
			assistant.ToolCalls = append(assistant.ToolCalls, model.ToolCall{
				ID:    aws.ToString(v.Value.ToolUseId),
				Name:  name,
				Input: decodeDocument(v.Value.Input),
			})
		}
	}

	resp := &model.Response{
		Candidates: []model.Message{assistant},
		StopReason: translateStopReason(out.StopReason),
		Model:      modelID,
	}
	if usage := out.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(usage.TotalTokens)),
		}
	}
	return resp, nil
}

func translateStopReason(reason brtypes.StopReason) model.StopReason {
	switch reason {
	case brtypes.StopReasonEndTurn, brtypes.StopReasonStopSequence:
		return model.StopEndTurn
	case brtypes.StopReasonToolUse:
		return model.StopToolUse
	case brtypes.StopReasonMaxTokens:
		return model.StopMaxTokens
	default:
		return model.StopOther
	}
}

// sanitizeToolName maps a tool identifier to the characters Bedrock allows by
// replacing any disallowed rune with '_'.
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
