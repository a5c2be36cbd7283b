// Package toolloop runs the bounded conversation loop between a model and a
// set of tools: ask the model, execute the tool calls it requests, feed the
// results back, repeat until the model answers in plain text, a tool returns
// directly, or the iteration budget runs out. The loop owns how many times a
// model may act within a single action; it never executes a tool the model
// did not request and never lets the model run unbounded.
package toolloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/telos-ai/telos/interrupt"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/telemetry"
	"github.com/telos-ai/telos/tools"
)

// DefaultMaxIterations bounds the loop when the configuration does not.
const DefaultMaxIterations = 10

type (
	// MessageTransformer rewrites the conversation at a stage boundary.
	// Transformers run in order, each receiving the previous output.
	MessageTransformer func(ctx context.Context, msgs []model.Message) []model.Message

	// ResultTransformer rewrites a tool result before it joins the
	// conversation.
	ResultTransformer func(ctx context.Context, result string) string

	// Transformers groups the rewrite stages of the loop.
	Transformers struct {
		// BeforeCall runs on the history before every model call.
		BeforeCall []MessageTransformer
		// AfterToolResult runs on each tool result string.
		AfterToolResult []ResultTransformer
		// AfterIteration runs on the history after the tool results of
		// an iteration were appended.
		AfterIteration []MessageTransformer
	}

	// Inspectors groups the observation stages of the loop. Inspectors
	// see, they never modify; their return values are ignored by design
	// of the signature.
	Inspectors struct {
		BeforeCall      []func(ctx context.Context, history []model.Message)
		AfterCall       []func(ctx context.Context, resp *model.Response, usage model.TokenUsage)
		AfterToolResult []func(ctx context.Context, call model.ToolCall, result string)
		AfterIteration  []func(ctx context.Context, iteration int, calls []model.ToolCall)
	}

	// Config tunes a Loop.
	Config struct {
		// MaxIterations is the model-call budget, default
		// DefaultMaxIterations.
		MaxIterations int
		// Model optionally pins a provider model identifier on every
		// request.
		Model string
		// Temperature, MaxTokens and Candidates are forwarded on every
		// request.
		Temperature *float64
		MaxTokens   int
		Candidates  int
		// Transformers and Inspectors hook the loop stages.
		Transformers Transformers
		Inspectors   Inspectors
		// Logger reports candidate folding and unknown tools.
		Logger telemetry.Logger
	}

	// Loop drives one bounded model/tool conversation. Construct with New;
	// a Loop is immutable and safe for concurrent Run calls.
	Loop struct {
		client model.Client
		cfg    Config
	}

	// Outcome is the terminal state of a loop run.
	Outcome struct {
		// Final is the last assistant message.
		Final model.Message
		// Direct is set when a ReturnDirect tool ended the loop; its
		// content is the terminal answer instead of Final's.
		Direct *tools.Result
		// Messages is the full conversation including tool results.
		Messages []model.Message
		// Usage accumulates token usage across all iterations.
		Usage model.TokenUsage
		// Iterations is the number of model calls made.
		Iterations int
	}

	// LimitError reports that the loop hit its iteration budget without a
	// terminal answer.
	LimitError struct {
		Iterations int
	}
)

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("toolloop: no terminal answer after %d iterations", e.Iterations)
}

// New constructs a Loop over the given client.
func New(client model.Client, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	return &Loop{client: client, cfg: cfg}
}

// Run executes the loop starting from history with the given tools
// available. Tools are invoked exactly as the model requests them, in order.
// Control-flow signals raised by tools propagate out unhandled; everything
// else a tool does wrong is fed back to the model as an error result.
func (l *Loop) Run(ctx context.Context, history []model.Message, available []tools.Tool) (*Outcome, error) {
	index := make(map[string]tools.Tool, len(available))
	defs := make([]model.ToolDefinition, len(available))
	for i, t := range available {
		def := t.Definition()
		index[def.Name] = t
		defs[i] = model.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}
	}

	msgs := make([]model.Message, len(history))
	copy(msgs, history)
	var usage model.TokenUsage

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs = applyMessageTransformers(ctx, l.cfg.Transformers.BeforeCall, msgs)
		for _, inspect := range l.cfg.Inspectors.BeforeCall {
			inspect(ctx, msgs)
		}

		resp, err := l.client.Complete(ctx, model.Request{
			Model:       l.cfg.Model,
			Messages:    msgs,
			Tools:       defs,
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
			Candidates:  l.cfg.Candidates,
		})
		if err != nil {
			return nil, err
		}
		usage.Add(resp.Usage)
		for _, inspect := range l.cfg.Inspectors.AfterCall {
			inspect(ctx, resp, usage)
		}

		assistant := l.foldCandidates(ctx, resp)
		msgs = append(msgs, assistant)

		if len(assistant.ToolCalls) == 0 {
			for _, inspect := range l.cfg.Inspectors.AfterIteration {
				inspect(ctx, iteration, nil)
			}
			return &Outcome{Final: assistant, Messages: msgs, Usage: usage, Iterations: iteration}, nil
		}

		for _, call := range assistant.ToolCalls {
			result, err := l.invoke(ctx, index, call)
			if err != nil {
				return nil, err
			}
			text := result.Content()
			for _, tr := range l.cfg.Transformers.AfterToolResult {
				text = tr(ctx, text)
			}
			for _, inspect := range l.cfg.Inspectors.AfterToolResult {
				inspect(ctx, call, text)
			}
			msgs = append(msgs, model.ToolResultMessage(call.ID, call.Name, text))

			if t, ok := index[call.Name]; ok && t.Metadata().ReturnDirect && !result.IsError() {
				direct := result.WithContent(text)
				for _, inspect := range l.cfg.Inspectors.AfterIteration {
					inspect(ctx, iteration, assistant.ToolCalls)
				}
				return &Outcome{
					Final:      assistant,
					Direct:     &direct,
					Messages:   msgs,
					Usage:      usage,
					Iterations: iteration,
				}, nil
			}
		}

		msgs = applyMessageTransformers(ctx, l.cfg.Transformers.AfterIteration, msgs)
		for _, inspect := range l.cfg.Inspectors.AfterIteration {
			inspect(ctx, iteration, assistant.ToolCalls)
		}
	}
	return nil, &LimitError{Iterations: l.cfg.MaxIterations}
}

// invoke runs one requested tool call. Unknown tools and plain tool errors
// come back as error results the model sees; signals and cancellation
// propagate.
func (l *Loop) invoke(ctx context.Context, index map[string]tools.Tool, call model.ToolCall) (tools.Result, error) {
	t, ok := index[call.Name]
	if !ok {
		l.cfg.Logger.Warn(ctx, "model requested unknown tool", "tool", call.Name)
		return tools.Errorf("unknown tool %q", call.Name), nil
	}
	res, err := t.Call(ctx, call.Input)
	if err != nil {
		if interrupt.IsSignal(err) || ctx.Err() != nil {
			return tools.Result{}, err
		}
		return tools.Errorf("tool %q failed: %v", call.Name, err), nil
	}
	return res, nil
}

// foldCandidates merges alternative generations into one assistant message:
// non-empty texts concatenate, tool calls union in order of appearance.
func (l *Loop) foldCandidates(ctx context.Context, resp *model.Response) model.Message {
	if len(resp.Candidates) == 0 {
		return model.AssistantMessage("")
	}
	if len(resp.Candidates) == 1 {
		msg := resp.Candidates[0]
		msg.Role = model.RoleAssistant
		return msg
	}
	var texts []string
	var calls []model.ToolCall
	seen := make(map[string]bool)
	for _, c := range resp.Candidates {
		if s := strings.TrimSpace(c.Content); s != "" {
			texts = append(texts, s)
		}
		for _, tc := range c.ToolCalls {
			key := tc.ID
			if key == "" {
				key = tc.Name + "\x00" + tc.Input
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, tc)
		}
	}
	l.cfg.Logger.Debug(ctx, "folded response candidates",
		"candidates", len(resp.Candidates),
		"tool_calls", len(calls))
	msg := model.AssistantMessage(strings.Join(texts, "\n"))
	msg.ToolCalls = calls
	return msg
}

func applyMessageTransformers(ctx context.Context, ts []MessageTransformer, msgs []model.Message) []model.Message {
	for _, t := range ts {
		if t != nil {
			msgs = t(ctx, msgs)
		}
	}
	return msgs
}
