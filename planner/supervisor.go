package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/run"
	"github.com/telos-ai/telos/telemetry"
	"github.com/telos-ai/telos/toolloop"
	"github.com/telos-ai/telos/tools"
)

// superActionName is the name of the synthesized orchestration action as it
// appears in action events.
const superActionName = "supervise"

type (
	// SupervisorConfig assembles a Supervisor. Client is required; it is
	// the model that orchestrates, independent of the models actions may
	// call through llm operations.
	SupervisorConfig struct {
		// Client answers the orchestration tool loop.
		Client model.Client
		// MaxIterations bounds the orchestration loop, default
		// toolloop.DefaultMaxIterations.
		MaxIterations int
		// Temperature and MaxTokens are forwarded to the model.
		Temperature *float64
		MaxTokens   int
		// Logger defaults to a no-op.
		Logger telemetry.Logger
	}

	// Supervisor plans by delegation: it synthesizes one super-action that
	// exposes every non-goal action to the model as a curried tool and
	// lets the model decide the order. Action inputs already present on
	// the blackboard are dropped from the tool schema; the remaining ones
	// surface as string parameters bound onto the blackboard at call time.
	// The goal action is never exposed; the supervisor dispatches it
	// itself as soon as its inputs are satisfied.
	Supervisor struct {
		cfg SupervisorConfig
	}
)

// NewSupervisor validates cfg and constructs a Supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Client == nil {
		return nil, errors.New("planner: supervisor client is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = toolloop.DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	return &Supervisor{cfg: cfg}, nil
}

// Next implements Planner. The decision order is fixed: a satisfied goal wins,
// then a ready goal action, then the synthesized super-action. The model is
// only consulted when the goal action cannot run yet.
func (s *Supervisor) Next(_ context.Context, in Input) (Decision, error) {
	if in.Goal == nil {
		return Decision{}, errors.New("planner: goal is required")
	}
	if in.Goal.SatisfiedBy(in.Board) {
		return Decision{GoalAchieved: true}, nil
	}
	excluded := excludeSet(in.Exclude)

	goalAct, hasGoalAct := in.Agent.GoalAction(in.Goal.Name)
	if hasGoalAct && !excluded[goalAct.Name] && goalAct.Ready(in.Board) {
		return Decision{Action: goalAct}, nil
	}

	var candidates []*agent.Action
	for _, act := range in.Agent.Actions {
		if act.Achieves != "" || excluded[act.Name] {
			continue
		}
		candidates = append(candidates, act)
	}
	if len(candidates) == 0 {
		return Decision{}, &NoPlanError{Goal: in.Goal.Name}
	}
	return Decision{Action: s.superAction(in, candidates, goalAct)}, nil
}

// superAction synthesizes the orchestration action. Its executor runs the
// tool loop against the supervisor's own client; the underlying actions
// execute inline inside their curried tools and write their outputs onto the
// blackboard as they go, surfacing on the bus as tool call events.
func (s *Supervisor) superAction(in Input, candidates []*agent.Action, goalAct *agent.Action) *agent.Action {
	return &agent.Action{
		Name:        superActionName,
		Description: fmt.Sprintf("orchestrates %q toward goal %q", in.Agent.Name, in.Goal.Name),
		Run: func(ctx context.Context, ac *agent.ActionContext) (any, error) {
			logger := ac.Logger
			if logger == nil {
				logger = s.cfg.Logger
			}
			chain := tools.ChainConfig{
				Process: ac.Process,
				Bus:     in.Bus,
				Logger:  logger,
			}
			progressed := 0
			curried := make([]tools.Tool, len(candidates))
			for i, act := range candidates {
				curried[i] = tools.Decorate(s.curriedTool(act, ac, &progressed), chain)
			}

			loop := toolloop.New(s.cfg.Client, toolloop.Config{
				MaxIterations: s.cfg.MaxIterations,
				Temperature:   s.cfg.Temperature,
				MaxTokens:     s.cfg.MaxTokens,
				Logger:        logger,
			})
			outcome, err := loop.Run(ctx, s.prompt(in, ac.Board), curried)
			if err != nil {
				return nil, err
			}

			goalReady := goalAct != nil && goalAct.Ready(ac.Board)
			if progressed == 0 && !goalReady && !in.Goal.SatisfiedBy(ac.Board) {
				return nil, fmt.Errorf("%w: model ended orchestration of goal %q without progress",
					ErrNoPlanFound, in.Goal.Name)
			}
			run.RecordAssistant(ac.Process, outcome.Final.Content)
			return nil, nil
		},
	}
}

// curriedTool wraps one action as a tool. Inputs resolvable from the current
// blackboard are omitted from the schema; the rest become required string
// parameters that are bound under their own names before the readiness check.
func (s *Supervisor) curriedTool(act *agent.Action, ac *agent.ActionContext, progressed *int) tools.Tool {
	schema, allowed := curriedSchema(act, ac.Board)
	description := act.Description
	if description == "" {
		description = fmt.Sprintf("runs the %q action", act.Name)
	}
	return tools.Func(act.Name, description, schema, func(ctx context.Context, input string) (tools.Result, error) {
		if len(allowed) > 0 && strings.TrimSpace(input) != "" {
			var supplied map[string]string
			if err := json.Unmarshal([]byte(input), &supplied); err != nil {
				return tools.Errorf("invalid input for action %q: %v", act.Name, err), nil
			}
			for name, value := range supplied {
				if allowed[name] {
					ac.Board.Bind(name, value)
				}
			}
		}
		if !act.Ready(ac.Board) {
			return tools.Errorf("action %q is not ready: required inputs are missing from the workspace", act.Name), nil
		}
		result, err := act.Run(ctx, ac)
		if err != nil {
			return tools.Result{}, err
		}
		names := agent.ApplyOutputs(act, ac.Board, result)
		*progressed++
		if len(names) == 0 {
			return tools.Text(fmt.Sprintf("action %q completed", act.Name)), nil
		}
		return tools.Text(fmt.Sprintf("action %q completed and wrote %s", act.Name, strings.Join(names, ", "))), nil
	})
}

// prompt frames the orchestration conversation: what the model is driving,
// what is on the workspace and what already ran.
func (s *Supervisor) prompt(in Input, board *blackboard.Blackboard) []model.Message {
	var sys strings.Builder
	fmt.Fprintf(&sys, "You orchestrate the agent %q toward the goal %q.", in.Agent.Name, in.Goal.Name)
	if in.Goal.Description != "" {
		sys.WriteString(" ")
		sys.WriteString(in.Goal.Description)
	}
	sys.WriteString(" Work strictly through the provided tools; each tool runs one action" +
		" of the agent and records its outputs on the shared workspace." +
		" Call whatever actions are needed to make the goal achievable," +
		" then reply with a short plain-text status.")

	var usr strings.Builder
	usr.WriteString("Workspace bindings:\n")
	snapshot := board.Snapshot()
	if len(snapshot) == 0 {
		usr.WriteString("(empty)\n")
	}
	for _, b := range snapshot {
		switch v := b.Value.(type) {
		case agent.UserInput:
			fmt.Fprintf(&usr, "- %s: %s = %q\n", b.Name, b.TypeName, v.Content)
		case string:
			fmt.Fprintf(&usr, "- %s: %s = %q\n", b.Name, b.TypeName, v)
		default:
			fmt.Fprintf(&usr, "- %s: %s\n", b.Name, b.TypeName)
		}
	}
	if len(in.Done) > 0 {
		fmt.Fprintf(&usr, "Actions already executed: %s\n", strings.Join(in.Done, ", "))
	}

	return []model.Message{
		model.SystemMessage(sys.String()),
		model.UserMessage(usr.String()),
	}
}

// curriedSchema builds the tool input schema for act against the current
// blackboard. The returned set lists the parameter names the tool accepts;
// nil means every input already resolves and the tool takes no parameters.
func curriedSchema(act *agent.Action, board *blackboard.Blackboard) (json.RawMessage, map[string]bool) {
	_, missing := agent.ResolveInputs(act, board)
	if len(missing) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(missing))
	required := make([]string, 0, len(missing))
	allowed := make(map[string]bool, len(missing))
	for _, b := range missing {
		name := paramName(b)
		props[name] = map[string]any{
			"type":        "string",
			"description": "value for the " + b.Type + " input",
		}
		required = append(required, name)
		allowed[name] = true
	}
	doc, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	if err != nil {
		return nil, nil
	}
	return doc, allowed
}

// paramName derives the tool parameter name for a binding: the binding name
// when declared, otherwise the bare type name.
func paramName(b agent.Binding) string {
	if b.Name != "" {
		return b.Name
	}
	t := strings.TrimPrefix(b.Type, "*")
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return t
}
