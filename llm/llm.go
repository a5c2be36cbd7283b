// Package llm implements structured-output operations over chat models:
// prompt a model, parse its answer into a typed Go value, validate it against
// a JSON Schema and retry transient failures. Operations is the engine-wide
// entry point; processes hand it to action executors through the action
// context.
//
// A call is one interaction: tools are resolved and decorated once, the
// request and response are published on the event bus once, and every model
// attempt inside (transport retries, the single validation retry, tool loop
// iterations) is accounted to the same interaction ID.
package llm

import (
	"errors"
	"time"

	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/telemetry"
	"github.com/telos-ai/telos/tools"
)

// DefaultTimeout bounds one model attempt when neither the interaction nor
// the configuration sets a timeout.
const DefaultTimeout = 60 * time.Second

type (
	// Config assembles an Operations. Registry is required; every other
	// field has a working zero value.
	Config struct {
		// Registry resolves interaction criteria to model clients.
		Registry *model.Registry
		// Bus receives LlmRequestEvent/LlmResponseEvent and the tool
		// call events of decorated tools. Nil constructs a private
		// bus.
		Bus hooks.Bus
		// Logger, Metrics and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// Groups resolves the tool group references interactions name.
		// Nil rejects any interaction that references a group.
		Groups tools.GroupResolver
		// Scheduler gates tool admission in the decorator chain.
		Scheduler tools.Scheduler
		// Transform rewrites tool output in the decorator chain.
		Transform tools.Transformer
		// Retry bounds transient-failure retries per logical
		// completion. Zero value means DefaultRetryConfig.
		Retry RetryConfig
		// DefaultTimeout bounds one model attempt. Zero means
		// DefaultTimeout.
		DefaultTimeout time.Duration
	}

	// Operations executes structured-output interactions. Safe for
	// concurrent use by any number of processes.
	Operations struct {
		registry  *model.Registry
		bus       hooks.Bus
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
		groups    tools.GroupResolver
		scheduler tools.Scheduler
		transform tools.Transformer
		retry     RetryConfig
		timeout   time.Duration
	}
)

// New validates cfg and constructs an Operations.
func New(cfg Config) (*Operations, error) {
	if cfg.Registry == nil {
		return nil, errors.New("llm: registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.NewNoopTracer()
	}
	if cfg.Bus == nil {
		cfg.Bus = hooks.NewBus(cfg.Logger)
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	return &Operations{
		registry:  cfg.Registry,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		groups:    cfg.Groups,
		scheduler: cfg.Scheduler,
		transform: cfg.Transform,
		retry:     cfg.Retry,
		timeout:   cfg.DefaultTimeout,
	}, nil
}

// Bus returns the event bus interactions publish on. Processes default to it
// so model and process events share one logical clock.
func (o *Operations) Bus() hooks.Bus { return o.bus }

// Logger returns the configured logger.
func (o *Operations) Logger() telemetry.Logger { return o.logger }

func (o *Operations) timeoutFor(inter Interaction) time.Duration {
	if inter.Options.Timeout > 0 {
		return inter.Options.Timeout
	}
	return o.timeout
}
