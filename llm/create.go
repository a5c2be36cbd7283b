package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/run"
	"github.com/telos-ai/telos/toolloop"
	"github.com/telos-ai/telos/tools"
)

// ResultOf carries a structured-output outcome as a value instead of failing
// loudly. Err is nil exactly when Value is usable.
type ResultOf[T any] struct {
	Value T
	Err   error
}

// OK reports whether the operation produced a usable value.
func (r ResultOf[T]) OK() bool { return r.Err == nil }

// CreateObject prompts the model with msgs and parses the answer into T.
// The interaction controls model selection, tools, schema validation and
// timeouts; proc ties events and decorated tools to the owning process and
// may be nil outside one. Failures are returned loudly: transport failures
// after the retry budget, schema violations after the single repair retry,
// and cancellation wrapped in ErrInterrupted.
func CreateObject[T any](ctx context.Context, ops *Operations, msgs []model.Message, inter Interaction, proc run.Handle) (T, error) {
	var out T
	if _, err := ops.createInto(ctx, msgs, inter, proc, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// CreateObjectIfPossible is CreateObject with the failure folded into the
// result value, for flows where a missing object is an expected outcome.
func CreateObjectIfPossible[T any](ctx context.Context, ops *Operations, msgs []model.Message, inter Interaction, proc run.Handle) ResultOf[T] {
	value, err := CreateObject[T](ctx, ops, msgs, inter, proc)
	return ResultOf[T]{Value: value, Err: err}
}

// createInto runs the full interaction and decodes the accepted candidate
// into out. It returns the raw JSON that was accepted.
func (o *Operations) createInto(ctx context.Context, msgs []model.Message, inter Interaction, proc run.Handle, out any) ([]byte, error) {
	client, err := o.registry.Lookup(inter.Options.Criteria)
	if err != nil {
		return nil, err
	}
	decorated, toolNames, err := o.resolveTools(inter, proc)
	if err != nil {
		return nil, err
	}

	prompt := make([]model.Message, len(msgs), len(msgs)+1)
	copy(prompt, msgs)
	if inter.Validate && len(inter.Schema) > 0 {
		prompt = append(prompt, model.UserMessage(schemaPrompt(inter.Schema)))
	}

	criteria := inter.Options.Criteria.String()
	ctx, span := o.tracer.Start(ctx, "llm.create_object", trace.WithAttributes(
		attribute.String("llm.interaction_id", inter.ID),
		attribute.String("llm.criteria", criteria),
		attribute.Int("llm.tools", len(decorated)),
	))
	defer span.End()

	pid, agentName := identity(proc)
	start := time.Now()
	var usage model.TokenUsage
	o.bus.Publish(ctx, hooks.NewLlmRequestEvent(pid, agentName, inter.ID, criteria, len(prompt), toolNames))
	defer func() {
		elapsed := time.Since(start)
		o.bus.Publish(ctx, hooks.NewLlmResponseEvent(pid, agentName, inter.ID, elapsed, usage))
		o.metrics.RecordTimer("llm.interaction.duration", elapsed, "criteria", criteria)
	}()

	// complete is one logical completion: ask, accumulate usage, parse.
	// Malformed JSON is retried from the same budget as transport
	// failures.
	complete := func(history []model.Message) ([]byte, error) {
		var raw []byte
		err := retryDo(ctx, o.retry, func(ctx context.Context) error {
			text, attemptUsage, err := o.askOnce(ctx, client, history, inter, decorated)
			usage.Add(attemptUsage)
			if err != nil {
				return err
			}
			parsed, jerr := decodeInto(text, out)
			if jerr != nil {
				o.logger.Debug(ctx, "structured output parse failed",
					"interaction_id", inter.ID, "err", jerr.Error())
				return jerr
			}
			raw = parsed
			run.RecordAssistant(proc, text)
			return nil
		})
		return raw, err
	}

	raw, err := complete(prompt)
	if err != nil {
		err = o.mapInterrupt(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !inter.Validate || len(inter.Schema) == 0 {
		return raw, nil
	}

	violations, err := validateAgainst(inter.Schema, raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(violations) == 0 {
		return raw, nil
	}

	// Exactly one repair retry: the candidate comes back with a report of
	// what was wrong with it.
	o.metrics.IncCounter("llm.validation.retries", 1, "criteria", criteria)
	o.logger.Info(ctx, "structured output failed validation, retrying once",
		"interaction_id", inter.ID,
		"violations", strings.Join(violations, "; "))
	span.AddEvent("llm.validation_retry", "violations", len(violations))

	repair := make([]model.Message, len(prompt), len(prompt)+2)
	copy(repair, prompt)
	repair = append(repair,
		model.AssistantMessage(string(raw)),
		model.UserMessage(violationsReport(violations)))

	raw, err = complete(repair)
	if err != nil {
		err = o.mapInterrupt(ctx, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	violations, err = validateAgainst(inter.Schema, raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(violations) == 0 {
		return raw, nil
	}
	verr := &InvalidStructuredOutputError{Violations: violations, Candidate: string(raw)}
	span.SetStatus(codes.Error, verr.Error())
	return nil, verr
}

// askOnce performs one completion attempt. Without tools it is a single
// detached model call; with tools it runs a full tool loop whose individual
// calls get their own transport retries.
func (o *Operations) askOnce(ctx context.Context, client model.Client, history []model.Message, inter Interaction, decorated []tools.Tool) (string, model.TokenUsage, error) {
	timeout := o.timeoutFor(inter)
	if len(decorated) == 0 {
		req := model.Request{
			Messages:    history,
			Temperature: inter.Options.Temperature,
			MaxTokens:   inter.Options.MaxTokens,
			Candidates:  inter.Options.Candidates,
		}
		resp, err := detachedComplete(ctx, client, req, timeout)
		if err != nil {
			return "", model.TokenUsage{}, err
		}
		return firstText(resp), resp.Usage, nil
	}
	loop := toolloop.New(&retryingClient{inner: client, retry: o.retry, timeout: timeout}, toolloop.Config{
		Temperature: inter.Options.Temperature,
		MaxTokens:   inter.Options.MaxTokens,
		Candidates:  inter.Options.Candidates,
		Logger:      o.logger,
	})
	outcome, err := loop.Run(ctx, history, decorated)
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	text := outcome.Final.Content
	if outcome.Direct != nil {
		text = outcome.Direct.Content()
	}
	return text, outcome.Usage, nil
}

// resolveTools resolves the interaction's group references, appends its
// standalone tools and decorates everything with the standard chain.
func (o *Operations) resolveTools(inter Interaction, proc run.Handle) ([]tools.Tool, []string, error) {
	if len(inter.Groups) == 0 && len(inter.Tools) == 0 {
		return nil, nil, nil
	}
	cfg := tools.ChainConfig{
		Process:   proc,
		Bus:       o.bus,
		Logger:    o.logger,
		Tracer:    o.tracer,
		Scheduler: o.scheduler,
		Transform: o.transform,
	}
	var decorated []tools.Tool
	for _, ref := range inter.Groups {
		if o.groups == nil {
			return nil, nil, fmt.Errorf("llm: no group resolver configured for group %q", ref)
		}
		g, ok := o.groups.Resolve(ref)
		if !ok {
			return nil, nil, fmt.Errorf("llm: unknown tool group %q", ref)
		}
		decorated = append(decorated, tools.DecorateGroup(g, cfg)...)
	}
	for _, t := range inter.Tools {
		decorated = append(decorated, tools.Decorate(t, cfg))
	}
	names := make([]string, len(decorated))
	for i, t := range decorated {
		names[i] = t.Definition().Name
	}
	return decorated, names, nil
}

// retryingClient wraps a model client with the detached-attempt timeout and
// transport retry policy, so tool loop iterations survive transient failures
// without restarting the loop.
type retryingClient struct {
	inner   model.Client
	retry   RetryConfig
	timeout time.Duration
}

// Complete implements model.Client.
func (c *retryingClient) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	var resp *model.Response
	err := retryDo(ctx, c.retry, func(ctx context.Context) error {
		r, err := detachedComplete(ctx, c.inner, req, c.timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// detachedComplete runs one model call in its own goroutine bounded by
// timeout. When the deadline fires the attempt is abandoned: the expired
// context tells well-behaved clients to stop and the goroutine drains into a
// buffered channel.
func detachedComplete(ctx context.Context, client model.Client, req model.Request, timeout time.Duration) (*model.Response, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()
	type outcome struct {
		resp *model.Response
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		resp, err := client.Complete(attemptCtx, req)
		ch <- outcome{resp: resp, err: err}
	}()
	select {
	case o := <-ch:
		return o.resp, o.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

// decodeInto extracts the JSON document from the model text and decodes it.
func decodeInto(text string, out any) ([]byte, error) {
	raw := []byte(extractJSON(text))
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return raw, nil
}

// extractJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON document. Models wrap JSON in fences often enough that
// parsing the raw text directly fails more than it succeeds.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// firstText returns the first non-empty candidate text.
func firstText(resp *model.Response) string {
	for _, c := range resp.Candidates {
		if c.Content != "" {
			return c.Content
		}
	}
	return ""
}

func identity(proc run.Handle) (processID, agentName string) {
	if proc == nil {
		return "", ""
	}
	return proc.ID(), proc.AgentName()
}

func (o *Operations) mapInterrupt(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}
