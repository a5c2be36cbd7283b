package planner

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/blackboard"
)

// DefaultMaxVisited bounds the goal-directed search when the planner does not
// set its own limit. States are monotonic type sets, so the bound is only hit
// on agents with very wide action graphs.
const DefaultMaxVisited = 4096

// GoalDirected plans by best-first search over the types present on the
// blackboard. Each action is an operator: its precondition is that the types
// of all required inputs are present, its effect is that its output types
// become present. The search returns the first action of the best plan found;
// the process dispatches it, observes the real outcome and plans again, so a
// full plan is never committed to.
//
// Plan priority is total cost minus total value, where value sums the
// actions' own values and the values of goals the plan newly satisfies. Ties
// break to lower cost, then higher value, then lexicographic plan signature.
type GoalDirected struct {
	// MaxVisited caps expanded states, default DefaultMaxVisited.
	MaxVisited int
}

// Next implements Planner.
func (p *GoalDirected) Next(ctx context.Context, in Input) (Decision, error) {
	if in.Goal == nil {
		return Decision{}, errors.New("planner: goal is required")
	}
	if in.Goal.SatisfiedBy(in.Board) {
		return Decision{GoalAchieved: true}, nil
	}

	limit := p.MaxVisited
	if limit <= 0 {
		limit = DefaultMaxVisited
	}
	excluded := excludeSet(in.Exclude)

	start := boardState(in.Board)
	open := &nodeQueue{{state: start, key: stateKey(start)}}
	heap.Init(open)
	visited := make(map[string]bool)

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		cur := heap.Pop(open).(*node)
		if cur.state[in.Goal.Satisfies] {
			// Unreachable for the start node, the satisfied goal is
			// handled before the search. Guard anyway.
			if cur.first == nil {
				return Decision{GoalAchieved: true}, nil
			}
			return Decision{Action: cur.first}, nil
		}
		if visited[cur.key] {
			continue
		}
		visited[cur.key] = true
		if len(visited) > limit {
			return Decision{}, &NoPlanError{Goal: in.Goal.Name, Visited: len(visited)}
		}

		for _, act := range in.Agent.Actions {
			if excluded[act.Name] || !applicable(act, cur.state) {
				continue
			}
			// Pre is a predicate over the live board. Only the
			// first step of a plan runs against the current board;
			// deeper steps are re-checked by the dispatcher once
			// they become current.
			if cur.first == nil && act.Pre != nil && !act.Pre(in.Board) {
				continue
			}
			next := applyEffects(act, cur.state)
			if next == nil {
				continue // no new types, no progress
			}
			key := stateKey(next)
			if visited[key] {
				continue
			}
			child := &node{
				state: next,
				key:   key,
				cost:  cur.cost + act.Cost,
				value: cur.value + act.Value + goalGains(in.Agent, cur.state, next),
				first: cur.first,
				path:  cur.path + "/" + act.Name,
			}
			if child.first == nil {
				child.first = act
			}
			heap.Push(open, child)
		}
	}
	return Decision{}, &NoPlanError{Goal: in.Goal.Name, Visited: len(visited)}
}

type node struct {
	state map[string]bool
	key   string
	cost  float64
	value float64
	// first is the first action of the plan this node extends; the only
	// part of the plan the planner ever returns.
	first *agent.Action
	// path is the plan signature used for the final tie-break.
	path string
}

// priority is the heap order: cheaper net plans first.
func (n *node) priority() float64 { return n.cost - n.value }

type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.priority() != b.priority() {
		return a.priority() < b.priority()
	}
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	if a.value != b.value {
		return a.value > b.value
	}
	return a.path < b.path
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*node)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// boardState projects the blackboard onto the set of present type names.
func boardState(b *blackboard.Blackboard) map[string]bool {
	state := make(map[string]bool)
	if b == nil {
		return state
	}
	for _, binding := range b.Snapshot() {
		state[binding.TypeName] = true
	}
	return state
}

// applicable reports whether every required input type of act is present.
func applicable(act *agent.Action, state map[string]bool) bool {
	for _, in := range act.Inputs {
		if in.Optional {
			continue
		}
		if !state[in.Type] {
			return false
		}
	}
	return true
}

// applyEffects returns the successor state, or nil when the action adds
// nothing new. Dropping no-progress successors is what makes cyclic action
// graphs terminate.
func applyEffects(act *agent.Action, state map[string]bool) map[string]bool {
	var next map[string]bool
	for _, out := range act.Outputs {
		if state[out.Type] {
			continue
		}
		if next == nil {
			next = make(map[string]bool, len(state)+len(act.Outputs))
			for t := range state {
				next[t] = true
			}
		}
		next[out.Type] = true
	}
	return next
}

// goalGains sums the values of goals the transition newly satisfies.
func goalGains(a *agent.Agent, before, after map[string]bool) float64 {
	var gain float64
	for _, g := range a.Goals {
		if !before[g.Satisfies] && after[g.Satisfies] {
			gain += g.Value
		}
	}
	return gain
}

// stateKey canonicalizes a state for the visited set.
func stateKey(state map[string]bool) string {
	names := make([]string, 0, len(state))
	for t := range state {
		names = append(names, t)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
