// Package process turns an agent definition into a running computation. A
// Process owns a blackboard and repeats one step until a terminal state:
// ask the planner for the next action, dispatch it, write its outputs back.
// Every lifecycle transition is published on the event bus, and the budgets
// in Options bound how much work a runaway agent can do.
//
// A process runs on the caller's goroutine. Run drives it until the goal is
// achieved, a budget is breached, the planner dead-ends, or an action asks
// for user input; in the latter case Run returns a WAITING_FOR_INPUT result
// and Resume continues the same process with the supplied answer.
package process

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/llm"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/planner"
	"github.com/telos-ai/telos/telemetry"
)

// Status is the lifecycle state of a process.
type Status string

const (
	// StatusRunning is the working state between construction and a
	// terminal or waiting transition.
	StatusRunning Status = "RUNNING"
	// StatusCompleted means the goal was achieved.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means an action failed fatally or a budget was
	// breached.
	StatusFailed Status = "FAILED"
	// StatusStuck means the planner found no way to reach the goal.
	StatusStuck Status = "STUCK"
	// StatusWaiting means an action suspended the process for user input.
	StatusWaiting Status = "WAITING_FOR_INPUT"
	// StatusCancelled means the context was cancelled.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a final state. WAITING_FOR_INPUT is not
// terminal; Resume re-enters RUNNING.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStuck, StatusCancelled:
		return true
	}
	return false
}

// DefaultMaxActions bounds dispatched actions when Options.MaxActions is
// zero.
const DefaultMaxActions = 32

type (
	// Options configures a process. The zero value runs a goal-directed
	// process without model access on a private bus.
	Options struct {
		// Goal names the goal to pursue. Empty selects the agent's
		// first declared goal.
		Goal string
		// Planner overrides the default goal-directed planner.
		Planner planner.Planner
		// LLM is handed to action executors through the action
		// context. Nil builds a process without model access.
		LLM *llm.Operations
		// Bus receives the process events. Nil falls back to the LLM
		// operations bus so model and process events share one
		// logical clock, or to a private bus without one.
		Bus hooks.Bus
		// Logger, Metrics and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// Bindings seed the blackboard before the first planning
		// pass, bound in lexicographic name order.
		Bindings map[string]any
		// MaxActions bounds dispatched actions including failed
		// attempts. Zero means DefaultMaxActions.
		MaxActions int
		// MaxTokens bounds the total token spend observed on the bus.
		// Zero means unlimited.
		MaxTokens int
		// Budget bounds the wall clock from construction. Zero means
		// unlimited.
		Budget time.Duration
		// ID overrides the generated process identifier.
		ID string
	}

	// Process is one run of an agent definition. Methods are safe for
	// concurrent use, but the loop itself is single-threaded: at most one
	// action executes at a time and the blackboard is never touched by
	// two actions of the same process concurrently.
	Process struct {
		id      string
		def     *agent.Agent
		goal    *agent.Goal
		plan    planner.Planner
		board   *blackboard.Blackboard
		bus     hooks.Bus
		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
		llm     *llm.Operations

		maxActions int
		maxTokens  int
		budget     time.Duration

		mu       sync.Mutex
		status   Status
		reason   string
		started  time.Time
		finished time.Time
		ran      bool
		actions  int
		done     []string
		exclude  []string
		lastText string
		usage    model.TokenUsage
		history  []hooks.Event
		journal  hooks.Subscription
	}

	// Result is the outcome of Run or Resume.
	Result struct {
		// ProcessID identifies the process the result belongs to.
		ProcessID string
		// Status is the state the process stopped in.
		Status Status
		// Reason explains a terminal failure, or carries the prompt
		// while waiting for input.
		Reason string
		// Snapshot is the blackboard content at stop time, in
		// insertion order.
		Snapshot []blackboard.Binding
		// Events is the full event history of the process in
		// sequence order.
		Events []hooks.Event
		// LastMessage is the most recent assistant text recorded by
		// an interaction or orchestration loop.
		LastMessage string
		// Usage totals the model token spend across the process.
		Usage model.TokenUsage
		// Actions counts dispatched actions, failed attempts
		// included.
		Actions int
		// Elapsed is the wall clock from construction to stop.
		Elapsed time.Duration
	}

	// MissingInputError reports an action dispatched with an unresolvable
	// non-optional input. The process excludes the action and replans.
	MissingInputError struct {
		Action  string
		Binding agent.Binding
	}
)

// Error implements error.
func (e *MissingInputError) Error() string {
	if e.Binding.Name != "" {
		return fmt.Sprintf("process: action %q input %q (%s) is not on the blackboard",
			e.Action, e.Binding.Name, e.Binding.Type)
	}
	return fmt.Sprintf("process: action %q input %s is not on the blackboard",
		e.Action, e.Binding.Type)
}

// New validates def and constructs a process in RUNNING state. The seed
// bindings are written to a fresh blackboard and the creation event is
// published before New returns.
func New(def *agent.Agent, opts Options) (*Process, error) {
	if def == nil {
		return nil, errors.New("process: agent definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	goal, err := selectGoal(def, opts.Goal)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil && opts.LLM != nil {
		logger = opts.LLM.Logger()
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	bus := opts.Bus
	if bus == nil && opts.LLM != nil {
		bus = opts.LLM.Bus()
	}
	if bus == nil {
		bus = hooks.NewBus(logger)
	}
	plan := opts.Planner
	if plan == nil {
		plan = &planner.GoalDirected{}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	maxActions := opts.MaxActions
	if maxActions <= 0 {
		maxActions = DefaultMaxActions
	}

	board := blackboard.New()
	names := make([]string, 0, len(opts.Bindings))
	for name := range opts.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		board.Bind(name, opts.Bindings[name])
	}

	p := &Process{
		id:         id,
		def:        def,
		goal:       goal,
		plan:       plan,
		board:      board,
		bus:        bus,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		llm:        opts.LLM,
		maxActions: maxActions,
		maxTokens:  opts.MaxTokens,
		budget:     opts.Budget,
		status:     StatusRunning,
		started:    time.Now(),
	}
	sub, err := bus.Subscribe(&processJournal{p: p})
	if err != nil {
		return nil, fmt.Errorf("process: subscribe journal: %w", err)
	}
	p.journal = sub
	p.metrics.IncCounter("process.created", 1, "agent", def.Name)
	bus.Publish(context.Background(), hooks.NewProcessCreatedEvent(id, def.Name, goal.Name))
	return p, nil
}

func selectGoal(def *agent.Agent, name string) (*agent.Goal, error) {
	if name != "" {
		goal, ok := def.Goal(name)
		if !ok {
			return nil, fmt.Errorf("process: agent %q declares no goal %q", def.Name, name)
		}
		return goal, nil
	}
	if len(def.Goals) == 0 {
		return nil, fmt.Errorf("process: agent %q declares no goals", def.Name)
	}
	return def.Goals[0], nil
}

// ID implements run.Handle.
func (p *Process) ID() string { return p.id }

// AgentName implements run.Handle.
func (p *Process) AgentName() string { return p.def.Name }

// Board implements run.Handle. The blackboard is owned by the process; other
// goroutines must not write to it while the process runs.
func (p *Process) Board() *blackboard.Blackboard { return p.board }

// RecordAssistant implements run.Recorder. Interactions and orchestration
// loops record their closing assistant text here; the latest one surfaces on
// the result.
func (p *Process) RecordAssistant(text string) {
	p.mu.Lock()
	p.lastText = text
	p.mu.Unlock()
}

// Status returns the current lifecycle state.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Goal returns the goal the process pursues.
func (p *Process) Goal() *agent.Goal { return p.goal }

// Result assembles the current outcome. It is valid at any point; Run and
// Resume return it at every stop.
func (p *Process) Result() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]hooks.Event, len(p.history))
	copy(events, p.history)
	elapsed := time.Since(p.started)
	if !p.finished.IsZero() {
		elapsed = p.finished.Sub(p.started)
	}
	return &Result{
		ProcessID:   p.id,
		Status:      p.status,
		Reason:      p.reason,
		Snapshot:    p.board.Snapshot(),
		Events:      events,
		LastMessage: p.lastText,
		Usage:       p.usage,
		Actions:     p.actions,
		Elapsed:     elapsed,
	}
}

// First returns the first snapshot value of the named type, in blackboard
// insertion order.
func (r *Result) First(typeName string) (any, bool) {
	for _, b := range r.Snapshot {
		if b.TypeName == typeName {
			return b.Value, true
		}
	}
	return nil, false
}

// processJournal accumulates the process's own events and its token spend.
// It sees every event on the bus and filters by process identity, so llm
// interaction events land in the same history as lifecycle events.
type processJournal struct {
	p *Process
}

func (j *processJournal) HandleEvent(_ context.Context, event hooks.Event) error {
	if event.ProcessID() != j.p.id {
		return nil
	}
	j.p.mu.Lock()
	defer j.p.mu.Unlock()
	j.p.history = append(j.p.history, event)
	if resp, ok := event.(*hooks.LlmResponseEvent); ok {
		j.p.usage.Add(resp.Usage)
	}
	return nil
}
