// Package autonomy chooses what an agent should do before any process runs.
// Given free-form bindings and an agent definition, a GoalSeeker ranks the
// agent's goals against the user's intent, confirms the winner with an
// approver, narrows the agent to the actions that can serve that goal and
// runs the resulting process.
//
// The bindings need not contain a user utterance: when no agent.UserInput is
// present the seeker synthesizes a textual sketch of the bindings and ranks
// against that.
package autonomy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
	"github.com/telos-ai/telos/process"
)

var (
	// ErrNoGoalAbove reports that no goal ranked at or above the cutoff.
	ErrNoGoalAbove = errors.New("autonomy: no goal ranked above the cutoff")
	// ErrRejected reports that the approver declined the winning goal.
	ErrRejected = errors.New("autonomy: goal rejected")
)

type (
	// Ranking scores one goal against the intent.
	Ranking struct {
		// Goal is the goal name as declared on the agent.
		Goal string
		// Confidence is the ranker's score in [0, 1].
		Confidence float64
	}

	// Ranker scores every candidate goal against the intent text.
	Ranker interface {
		Rank(ctx context.Context, intent string, goals []*agent.Goal) ([]Ranking, error)
	}

	// Approver confirms the winning goal before a process is built. A
	// false return without error is a clean rejection.
	Approver interface {
		Approve(ctx context.Context, goal *agent.Goal, confidence float64) (bool, error)
	}

	// AutoApprove accepts every ranked choice.
	AutoApprove struct{}

	// GoalSeeker is the outer loop: rank, approve, focus, run.
	GoalSeeker struct {
		// Ranker scores the goals; required.
		Ranker Ranker
		// Approver confirms the winner. Nil auto-approves.
		Approver Approver
		// CutOff drops rankings below it. Zero keeps everything.
		CutOff float64
		// Platform configures the process that runs the chosen goal.
		// Goal and Bindings are overwritten per seek.
		Platform process.Options
	}
)

// Approve implements Approver.
func (AutoApprove) Approve(context.Context, *agent.Goal, float64) (bool, error) {
	return true, nil
}

// Seek ranks def's goals against the bindings, runs the best one and returns
// the process result. The bindings seed the process blackboard unchanged.
func (s *GoalSeeker) Seek(ctx context.Context, def *agent.Agent, bindings map[string]any) (*process.Result, error) {
	if s.Ranker == nil {
		return nil, errors.New("autonomy: ranker is required")
	}
	if def == nil {
		return nil, errors.New("autonomy: agent definition is required")
	}
	if len(def.Goals) == 0 {
		return nil, fmt.Errorf("autonomy: agent %q declares no goals", def.Name)
	}

	intent := intentText(bindings)
	rankings, err := s.Ranker.Rank(ctx, intent, def.Goals)
	if err != nil {
		return nil, fmt.Errorf("autonomy: rank goals: %w", err)
	}

	var best Ranking
	found := false
	for _, r := range rankings {
		if r.Confidence < s.CutOff {
			continue
		}
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %d goals scored below %.2f", ErrNoGoalAbove, len(rankings), s.CutOff)
	}
	goal, ok := def.Goal(best.Goal)
	if !ok {
		return nil, fmt.Errorf("autonomy: ranker chose unknown goal %q", best.Goal)
	}

	approver := s.Approver
	if approver == nil {
		approver = AutoApprove{}
	}
	approved, err := approver.Approve(ctx, goal, best.Confidence)
	if err != nil {
		return nil, fmt.Errorf("autonomy: approve goal %q: %w", goal.Name, err)
	}
	if !approved {
		return nil, fmt.Errorf("%w: %q at confidence %.2f", ErrRejected, goal.Name, best.Confidence)
	}

	focused, err := Focus(def, goal.Name)
	if err != nil {
		return nil, err
	}
	opts := s.Platform
	opts.Goal = goal.Name
	opts.Bindings = bindings
	proc, err := process.New(focused, opts)
	if err != nil {
		return nil, err
	}
	return proc.Run(ctx)
}

// Focus returns a copy of def narrowed to goalName: the goal itself plus the
// actions in its transitive input-type closure. Actions achieving other
// goals survive as plain producers when the closure needs their outputs.
func Focus(def *agent.Agent, goalName string) (*agent.Agent, error) {
	goal, ok := def.Goal(goalName)
	if !ok {
		return nil, fmt.Errorf("autonomy: agent %q declares no goal %q", def.Name, goalName)
	}
	needed := map[string]bool{goal.Satisfies: true}
	kept := make(map[string]bool, len(def.Actions))
	for changed := true; changed; {
		changed = false
		for _, act := range def.Actions {
			if kept[act.Name] || !relevant(act, goalName, needed) {
				continue
			}
			kept[act.Name] = true
			changed = true
			for _, in := range act.Inputs {
				needed[in.Type] = true
			}
		}
	}

	actions := make([]*agent.Action, 0, len(kept))
	for _, act := range def.Actions {
		if !kept[act.Name] {
			continue
		}
		c := *act
		if c.Achieves != "" && c.Achieves != goalName {
			c.Achieves = ""
		}
		actions = append(actions, &c)
	}
	return &agent.Agent{
		Name:        def.Name,
		Description: def.Description,
		Actions:     actions,
		Goals:       []*agent.Goal{goal},
	}, nil
}

func relevant(act *agent.Action, goalName string, needed map[string]bool) bool {
	if act.Achieves == goalName {
		return true
	}
	for _, out := range act.Outputs {
		if needed[out.Type] {
			return true
		}
	}
	return false
}

// intentText derives the ranking text. A UserInput binding wins; otherwise
// the bindings are sketched deterministically in name order.
func intentText(bindings map[string]any) string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if in, ok := bindings[name].(agent.UserInput); ok {
			return in.Content
		}
	}
	if len(names) == 0 {
		return "No initial facts were provided."
	}
	var b strings.Builder
	b.WriteString("Choose a goal for these facts:")
	for _, name := range names {
		value := bindings[name]
		fmt.Fprintf(&b, "\n- %s (%s): %+v", name, blackboard.TypeNameOf(value), value)
	}
	return b.String()
}
