// Package agent defines the static shape of an agent: named actions with
// typed inputs and outputs, and goals satisfied by the presence of a typed
// value on the blackboard. Definitions are plain data registered
// programmatically; planners read them as operators and the process
// dispatcher executes them.
package agent

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/llm"
	"github.com/telos-ai/telos/run"
	"github.com/telos-ai/telos/telemetry"
)

type (
	// Agent is an immutable agent definition. Processes execute it, they
	// never mutate it; one definition can back any number of concurrent
	// processes.
	Agent struct {
		// Name identifies the agent in events and logs.
		Name string
		// Description tells goal rankers and operators what the agent
		// is for.
		Description string
		// Actions are the operators available to the planner.
		Actions []*Action
		// Goals are the terminal conditions the agent can pursue.
		Goals []*Goal
	}

	// Action is one operator: it consumes typed inputs from the
	// blackboard and produces typed outputs onto it.
	Action struct {
		// Name is unique within the agent.
		Name string
		// Description tells the supervisor model what the action does.
		Description string
		// Inputs are the bindings the executor consumes. All
		// non-optional inputs must be resolvable before dispatch.
		Inputs []Binding
		// Outputs are the bindings the executor produces.
		Outputs []Binding
		// Cost weighs the action in goal-directed search. Zero is a
		// valid cost.
		Cost float64
		// Value rewards plans that pass through the action.
		Value float64
		// Pre is an optional predicate over the current blackboard,
		// checked in addition to input presence. Nil means no extra
		// condition.
		Pre func(*blackboard.Blackboard) bool
		// Run executes the action.
		Run Executor
		// Achieves names the goal this action completes, empty for
		// intermediate actions. Goal actions are dispatched directly
		// by the planner, never exposed as orchestration tools.
		Achieves string
	}

	// Goal is a terminal condition: it is satisfied when a value of the
	// Satisfies type is present on the blackboard.
	Goal struct {
		// Name is unique within the agent.
		Name string
		// Description is what goal rankers score against.
		Description string
		// Satisfies is the blackboard type name whose presence
		// completes the goal.
		Satisfies string
		// Value rewards plans that reach this goal in goal-directed
		// search.
		Value float64
	}

	// Binding declares one typed input or output of an action. An empty
	// Name resolves by type in blackboard insertion order; a non-empty
	// Name resolves that exact entry.
	Binding struct {
		Name     string
		Type     string
		Optional bool
	}

	// Executor is the code body of an action. The returned value is bound
	// onto the blackboard by the dispatcher: a single value lands under
	// the declared output name, a []Output list binds each entry
	// explicitly, nil binds nothing. Control-flow signals travel through
	// the error return.
	Executor func(ctx context.Context, ac *ActionContext) (any, error)

	// ActionContext carries the per-process collaborators an executor may
	// use. LLM is nil when the process was built without model access.
	ActionContext struct {
		Board   *blackboard.Blackboard
		LLM     *llm.Operations
		Process run.Handle
		Logger  telemetry.Logger
	}

	// Output is an explicit named blackboard update returned by an
	// executor.
	Output struct {
		Name  string
		Value any
	}

	// UserInput is the conventional binding type for free-form user
	// intent. Autonomy ranking and supervisor prompts read it when
	// present.
	UserInput struct {
		Content string
		At      time.Time
	}
)

// NewUserInput returns a UserInput timestamped now.
func NewUserInput(content string) UserInput {
	return UserInput{Content: content, At: time.Now()}
}

// Type returns the blackboard type name for T, the form bindings and goals
// declare.
func Type[T any]() string {
	return blackboard.TypeName(reflect.TypeFor[T]())
}

// Of returns a Binding resolved by type in insertion order.
func Of[T any]() Binding {
	return Binding{Type: Type[T]()}
}

// Named returns a Binding resolved by exact blackboard name.
func Named[T any](name string) Binding {
	return Binding{Name: name, Type: Type[T]()}
}

// AsOptional returns a copy of b marked optional. Optional inputs resolve
// when present and are skipped without error when absent.
func (b Binding) AsOptional() Binding {
	b.Optional = true
	return b
}

// Validate checks the definition for structural errors: missing names,
// duplicate actions or goals, dangling goal references, nil executors and
// untyped bindings.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent: name is required")
	}
	goals := make(map[string]bool, len(a.Goals))
	for _, g := range a.Goals {
		if g.Name == "" {
			return fmt.Errorf("agent %q: goal name is required", a.Name)
		}
		if goals[g.Name] {
			return fmt.Errorf("agent %q: duplicate goal %q", a.Name, g.Name)
		}
		if g.Satisfies == "" {
			return fmt.Errorf("agent %q: goal %q satisfies no type", a.Name, g.Name)
		}
		goals[g.Name] = true
	}
	actions := make(map[string]bool, len(a.Actions))
	for _, act := range a.Actions {
		if act.Name == "" {
			return fmt.Errorf("agent %q: action name is required", a.Name)
		}
		if actions[act.Name] {
			return fmt.Errorf("agent %q: duplicate action %q", a.Name, act.Name)
		}
		actions[act.Name] = true
		if act.Run == nil {
			return fmt.Errorf("agent %q: action %q has no executor", a.Name, act.Name)
		}
		if act.Achieves != "" && !goals[act.Achieves] {
			return fmt.Errorf("agent %q: action %q achieves unknown goal %q", a.Name, act.Name, act.Achieves)
		}
		for _, b := range act.Inputs {
			if b.Type == "" {
				return fmt.Errorf("agent %q: action %q has an untyped input", a.Name, act.Name)
			}
		}
		for _, b := range act.Outputs {
			if b.Type == "" {
				return fmt.Errorf("agent %q: action %q has an untyped output", a.Name, act.Name)
			}
		}
	}
	return nil
}

// Goal returns the named goal.
func (a *Agent) Goal(name string) (*Goal, bool) {
	for _, g := range a.Goals {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Action returns the named action.
func (a *Agent) Action(name string) (*Action, bool) {
	for _, act := range a.Actions {
		if act.Name == name {
			return act, true
		}
	}
	return nil, false
}

// GoalAction returns the action that achieves the named goal.
func (a *Agent) GoalAction(goalName string) (*Action, bool) {
	for _, act := range a.Actions {
		if act.Achieves == goalName {
			return act, true
		}
	}
	return nil, false
}

// SatisfiedBy reports whether the goal's output type is present on b.
func (g *Goal) SatisfiedBy(b *blackboard.Blackboard) bool {
	_, ok := b.FirstOfType(g.Satisfies)
	return ok
}
