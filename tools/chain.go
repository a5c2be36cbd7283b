package tools

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/interrupt"
	"github.com/telos-ai/telos/run"
	"github.com/telos-ai/telos/telemetry"
)

// ChainConfig carries the collaborators the decorator chain needs. Zero-value
// fields degrade gracefully: nil Bus publishes nothing, nil Process skips the
// ambient binding, nil Scheduler admits immediately, nil Transform is the
// identity.
type ChainConfig struct {
	// Process is installed into the ambient context for the duration of
	// every call and identifies the events the chain publishes.
	Process run.Handle
	// Bus receives ToolCallRequestEvent and ToolCallResponseEvent.
	Bus hooks.Bus
	// Logger reports tool failures, metadata merge details and transform
	// savings.
	Logger telemetry.Logger
	// Tracer opens one span per tool call.
	Tracer telemetry.Tracer
	// Scheduler gates admission of every call.
	Scheduler Scheduler
	// Transform rewrites successful result text.
	Transform Transformer
	// Group supplies the metadata merged into each member tool.
	Group *Group
}

// Decorate wraps t in the standard decorator chain. Wrapping is applied
// innermost-outward: metadata enriching, observability, event publishing,
// output transforming, exception suppressing, process binding. Every layer
// preserves the tool's definition, and control-flow signals raised by the
// tool cross the whole chain unchanged.
func Decorate(t Tool, cfg ChainConfig) Tool {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NewNoopTracer()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NopScheduler{}
	}
	d := t
	d = &metadataEnriching{tool: d, group: cfg.Group, logger: cfg.Logger}
	d = &observability{tool: d, tracer: cfg.Tracer}
	d = &eventPublishing{tool: d, bus: cfg.Bus, scheduler: cfg.Scheduler, process: cfg.Process}
	d = &outputTransforming{tool: d, transform: cfg.Transform, logger: cfg.Logger}
	d = &exceptionSuppressing{tool: d, logger: cfg.Logger}
	d = &processBinding{tool: d, process: cfg.Process}
	return d
}

// DecorateGroup decorates every member of g with cfg, wiring g in as the
// metadata source.
func DecorateGroup(g *Group, cfg ChainConfig) []Tool {
	cfg.Group = g
	out := make([]Tool, len(g.Tools))
	for i, t := range g.Tools {
		out[i] = Decorate(t, cfg)
	}
	return out
}

// metadataEnriching merges the owning group's metadata into the tool's and
// logs tool failures without altering them.
type metadataEnriching struct {
	tool   Tool
	group  *Group
	logger telemetry.Logger
}

func (d *metadataEnriching) Definition() Definition { return d.tool.Definition() }

func (d *metadataEnriching) Metadata() Metadata {
	meta := d.tool.Metadata()
	if d.group == nil {
		return meta
	}
	if meta.Group == "" {
		meta.Group = d.group.Name
	}
	if len(d.group.Extra) > 0 {
		merged := make(map[string]string, len(d.group.Extra)+len(meta.Extra))
		for k, v := range d.group.Extra {
			merged[k] = v
		}
		for k, v := range meta.Extra {
			merged[k] = v
		}
		meta.Extra = merged
	}
	return meta
}

func (d *metadataEnriching) Call(ctx context.Context, input string) (Result, error) {
	res, err := d.tool.Call(ctx, input)
	if err != nil && !interrupt.IsSignal(err) {
		d.logger.Warn(ctx, "tool call failed",
			"tool", d.tool.Definition().Name,
			"err", err.Error())
	}
	return res, err
}

// observability opens a span around the call and records its outcome. Signals
// are span events, not errors.
type observability struct {
	tool   Tool
	tracer telemetry.Tracer
}

func (d *observability) Definition() Definition { return d.tool.Definition() }

func (d *observability) Metadata() Metadata { return d.tool.Metadata() }

func (d *observability) Call(ctx context.Context, input string) (Result, error) {
	name := d.tool.Definition().Name
	ctx, span := d.tracer.Start(ctx, "tool."+name, trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.Int("tool.input_bytes", len(input)),
	))
	defer span.End()
	res, err := d.tool.Call(ctx, input)
	switch {
	case err != nil && interrupt.IsSignal(err):
		span.AddEvent("tool.signal", "signal", err.Error())
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.IsError():
		span.SetStatus(codes.Error, res.Content())
	default:
		span.AddEvent("tool.result", "bytes", len(res.Content()))
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

// eventPublishing gates admission through the scheduler and publishes the
// request/response event pair.
type eventPublishing struct {
	tool      Tool
	bus       hooks.Bus
	scheduler Scheduler
	process   run.Handle
}

func (d *eventPublishing) Definition() Definition { return d.tool.Definition() }

func (d *eventPublishing) Metadata() Metadata { return d.tool.Metadata() }

func (d *eventPublishing) Call(ctx context.Context, input string) (Result, error) {
	name := d.tool.Definition().Name
	if delay := d.scheduler.Delay(ctx, name); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	pid, agent := d.identity(ctx)
	d.publish(ctx, hooks.NewToolCallRequestEvent(pid, agent, name, input))
	start := time.Now()
	res, err := d.tool.Call(ctx, input)
	var failure string
	if err != nil {
		failure = err.Error()
	} else if res.IsError() {
		failure = res.Content()
	}
	d.publish(ctx, hooks.NewToolCallResponseEvent(pid, agent, name, res.Content(), failure, time.Since(start)))
	return res, err
}

func (d *eventPublishing) identity(ctx context.Context) (processID, agentName string) {
	h := d.process
	if h == nil {
		h, _ = run.FromContext(ctx)
	}
	if h == nil {
		return "", ""
	}
	return h.ID(), h.AgentName()
}

func (d *eventPublishing) publish(ctx context.Context, event hooks.Event) {
	if d.bus != nil {
		d.bus.Publish(ctx, event)
	}
}

// outputTransforming rewrites successful result text. Error results carry
// diagnostic text and pass through untouched.
type outputTransforming struct {
	tool      Tool
	transform Transformer
	logger    telemetry.Logger
}

func (d *outputTransforming) Definition() Definition { return d.tool.Definition() }

func (d *outputTransforming) Metadata() Metadata { return d.tool.Metadata() }

func (d *outputTransforming) Call(ctx context.Context, input string) (Result, error) {
	res, err := d.tool.Call(ctx, input)
	if err != nil || res.IsError() || d.transform == nil {
		return res, err
	}
	before := res.Content()
	after := d.transform(before)
	if saved := len(before) - len(after); saved > 0 {
		d.logger.Debug(ctx, "tool output transformed",
			"tool", d.tool.Definition().Name,
			"bytes_saved", saved)
	}
	return res.WithContent(after), nil
}

// exceptionSuppressing converts infrastructure errors into warning results
// the model can react to. Control-flow signals and context cancellation are
// not tool failures and pass through.
type exceptionSuppressing struct {
	tool   Tool
	logger telemetry.Logger
}

func (d *exceptionSuppressing) Definition() Definition { return d.tool.Definition() }

func (d *exceptionSuppressing) Metadata() Metadata { return d.tool.Metadata() }

func (d *exceptionSuppressing) Call(ctx context.Context, input string) (Result, error) {
	res, err := d.tool.Call(ctx, input)
	if err == nil || interrupt.IsSignal(err) || ctx.Err() != nil {
		return res, err
	}
	name := d.tool.Definition().Name
	d.logger.Warn(ctx, "tool exception suppressed", "tool", name, "err", err.Error())
	return Text("WARNING: Tool '" + name + "' failed with exception: " + err.Error()), nil
}

// processBinding installs the process into the ambient context for the
// duration of the call. The derived context dies with the call, so the
// previous ambient value is restored on every exit path.
type processBinding struct {
	tool    Tool
	process run.Handle
}

func (d *processBinding) Definition() Definition { return d.tool.Definition() }

func (d *processBinding) Metadata() Metadata { return d.tool.Metadata() }

func (d *processBinding) Call(ctx context.Context, input string) (Result, error) {
	if d.process != nil {
		ctx = run.NewContext(ctx, d.process)
	}
	return d.tool.Call(ctx, input)
}
