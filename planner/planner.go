// Package planner decides what an agent process runs next. A Planner reads
// the current blackboard and the agent definition and returns either the next
// action to dispatch or the verdict that the goal is already satisfied. Two
// planners ship with the engine: GoalDirected searches the action graph for
// the cheapest path to the goal type, Supervisor hands orchestration to a
// language model that drives the non-goal actions as tools.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/run"
)

// ErrNoPlanFound marks a planner dead end: no sequence of actions reaches the
// goal from the current blackboard. Match with errors.Is; the concrete
// NoPlanError carries the goal and the search effort.
var ErrNoPlanFound = errors.New("planner: no plan found")

type (
	// Planner selects the next action for a process. Implementations must
	// be safe for concurrent use; all per-process state arrives in the
	// Input.
	Planner interface {
		// Next returns the next step toward in.Goal. A Decision with
		// GoalAchieved set means there is nothing left to do. A dead
		// end returns an error wrapping ErrNoPlanFound.
		Next(ctx context.Context, in Input) (Decision, error)
	}

	// Input is everything a planner may consult for one decision.
	Input struct {
		// Board is the live blackboard of the process.
		Board *blackboard.Blackboard
		// Agent is the definition whose actions are available.
		Agent *agent.Agent
		// Goal is the target of the current run.
		Goal *agent.Goal
		// Done lists the names of actions already dispatched, oldest
		// first. Informational; search planners ignore it.
		Done []string
		// Exclude lists action names the process has ruled out, such
		// as actions that failed on missing inputs. Planners must not
		// select them.
		Exclude []string
		// Process identifies the owning process for event publication
		// and ambient context. May be nil in tests.
		Process run.Handle
		// Bus receives tool call events from planners that execute
		// model orchestration. May be nil.
		Bus hooks.Bus
	}

	// Decision is one planner verdict.
	Decision struct {
		// Action is the next step to dispatch. Nil when GoalAchieved.
		Action *agent.Action
		// GoalAchieved reports that the goal is already satisfied by
		// the current blackboard.
		GoalAchieved bool
	}

	// NoPlanError is the typed dead-end verdict.
	NoPlanError struct {
		// Goal names the unreachable goal.
		Goal string
		// Visited is the number of states expanded before giving up.
		Visited int
	}
)

// Error implements the error interface.
func (e *NoPlanError) Error() string {
	return fmt.Sprintf("planner: no plan found for goal %q after visiting %d states", e.Goal, e.Visited)
}

// Unwrap makes errors.Is(err, ErrNoPlanFound) hold.
func (e *NoPlanError) Unwrap() error { return ErrNoPlanFound }

// excludeSet builds the constant-time lookup for Input.Exclude.
func excludeSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
