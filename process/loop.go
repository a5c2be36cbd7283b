package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/hooks"
	"github.com/telos-ai/telos/interrupt"
	"github.com/telos-ai/telos/planner"
)

// Run drives the process until a terminal state or WAITING_FOR_INPUT. The
// returned error reports misuse only; execution failures are data on the
// result, never Go errors.
func (p *Process) Run(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	if p.ran {
		status := p.status
		p.mu.Unlock()
		return nil, fmt.Errorf("process: already started (status %s)", status)
	}
	p.ran = true
	p.mu.Unlock()
	p.logger.Info(ctx, "process running",
		"process_id", p.id, "agent", p.def.Name, "goal", p.goal.Name)
	return p.loop(ctx)
}

// Resume supplies the input a waiting process asked for and re-enters the
// loop. A string is bound as agent.UserInput under the default name; any
// other non-nil value is bound as-is. Exclusions accumulated before the
// suspension are dropped since the new input may unblock them.
func (p *Process) Resume(ctx context.Context, input any) (*Result, error) {
	p.mu.Lock()
	if p.status != StatusWaiting {
		status := p.status
		p.mu.Unlock()
		return nil, fmt.Errorf("process: resume requires %s, process is %s", StatusWaiting, status)
	}
	p.status = StatusRunning
	p.reason = ""
	p.exclude = nil
	p.mu.Unlock()

	switch v := input.(type) {
	case nil:
	case string:
		p.board.BindDefault(agent.NewUserInput(v))
	default:
		p.board.BindDefault(v)
	}
	p.bus.Publish(ctx, hooks.NewProcessResumedEvent(p.id, p.def.Name))
	return p.loop(ctx)
}

// loop is one planner/dispatcher round per iteration. Budgets gate dispatch,
// not completion: a satisfied goal always completes even on the last allowed
// action.
func (p *Process) loop(ctx context.Context) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return p.terminate(ctx, StatusCancelled, "context cancelled: "+err.Error(), err), nil
		}

		decision, err := p.plan.Next(ctx, p.plannerInput())
		if err != nil {
			if ctx.Err() != nil {
				return p.terminate(ctx, StatusCancelled, "context cancelled: "+ctx.Err().Error(), err), nil
			}
			if errors.Is(err, planner.ErrNoPlanFound) {
				return p.terminate(ctx, StatusStuck, err.Error(), err), nil
			}
			return p.terminate(ctx, StatusFailed, "planner failed: "+err.Error(), err), nil
		}
		if decision.GoalAchieved {
			p.bus.Publish(ctx, hooks.NewGoalAchievedEvent(p.id, p.def.Name, p.goal.Name))
			return p.terminate(ctx, StatusCompleted, fmt.Sprintf("goal %q achieved", p.goal.Name), nil), nil
		}
		if decision.Action == nil {
			return p.terminate(ctx, StatusFailed, "planner returned neither an action nor goal achievement", nil), nil
		}

		if reason, breached := p.breachedBudget(); breached {
			return p.terminate(ctx, StatusFailed, reason, nil), nil
		}

		err = p.dispatch(ctx, decision.Action)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return p.terminate(ctx, StatusCancelled, "context cancelled: "+ctx.Err().Error(), err), nil
		}
		if sig, ok := interrupt.AsReplan(err); ok {
			p.bus.Publish(ctx, hooks.NewReplanRequestedEvent(p.id, p.def.Name, decision.Action.Name, sig.Reason))
			p.logger.Info(ctx, "action requested replan",
				"process_id", p.id, "action", decision.Action.Name, "reason", sig.Reason)
			continue
		}
		if sig, ok := interrupt.AsUserInput(err); ok {
			return p.wait(ctx, sig.Prompt), nil
		}
		var missing *MissingInputError
		if errors.As(err, &missing) {
			p.mu.Lock()
			p.exclude = append(p.exclude, decision.Action.Name)
			p.mu.Unlock()
			p.logger.Warn(ctx, "action input missing, replanning without it",
				"process_id", p.id, "action", decision.Action.Name, "err", err.Error())
			continue
		}
		if errors.Is(err, planner.ErrNoPlanFound) {
			return p.terminate(ctx, StatusStuck, err.Error(), err), nil
		}
		return p.terminate(ctx, StatusFailed,
			fmt.Sprintf("action %q failed: %v", decision.Action.Name, err), err), nil
	}
}

// dispatch runs one action: resolve inputs, execute, write outputs. The
// attempt is counted and bracketed by ActionStarted/ActionFinished whether it
// succeeds or not.
func (p *Process) dispatch(ctx context.Context, act *agent.Action) error {
	p.mu.Lock()
	p.actions++
	p.mu.Unlock()
	p.bus.Publish(ctx, hooks.NewActionStartedEvent(p.id, p.def.Name, act.Name))

	ctx, span := p.tracer.Start(ctx, "action."+act.Name, trace.WithAttributes(
		attribute.String("action.name", act.Name),
		attribute.String("process.id", p.id),
	))
	defer span.End()
	start := time.Now()

	if _, missingInputs := agent.ResolveInputs(act, p.board); len(missingInputs) > 0 {
		err := &MissingInputError{Action: act.Name, Binding: missingInputs[0]}
		span.SetStatus(codes.Error, err.Error())
		p.bus.Publish(ctx, hooks.NewActionFinishedEvent(p.id, p.def.Name, act.Name, time.Since(start), nil, err))
		return err
	}

	result, err := act.Run(ctx, &agent.ActionContext{
		Board:   p.board,
		LLM:     p.llm,
		Process: p,
		Logger:  p.logger,
	})
	if err != nil {
		if interrupt.IsSignal(err) {
			span.AddEvent("action.signal", "signal", err.Error())
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.bus.Publish(ctx, hooks.NewActionFinishedEvent(p.id, p.def.Name, act.Name, time.Since(start), nil, err))
		return err
	}

	names := agent.ApplyOutputs(act, p.board, result)
	span.SetStatus(codes.Ok, "")
	p.bus.Publish(ctx, hooks.NewActionFinishedEvent(p.id, p.def.Name, act.Name, time.Since(start), names, nil))
	p.metrics.IncCounter("process.actions", 1, "agent", p.def.Name, "action", act.Name)

	p.mu.Lock()
	p.done = append(p.done, act.Name)
	// New facts can unblock actions that were excluded for missing inputs.
	p.exclude = nil
	p.mu.Unlock()
	return nil
}

func (p *Process) plannerInput() planner.Input {
	p.mu.Lock()
	done := make([]string, len(p.done))
	copy(done, p.done)
	exclude := make([]string, len(p.exclude))
	copy(exclude, p.exclude)
	p.mu.Unlock()
	return planner.Input{
		Board:   p.board,
		Agent:   p.def,
		Goal:    p.goal,
		Done:    done,
		Exclude: exclude,
		Process: p,
		Bus:     p.bus,
	}
}

// breachedBudget checks the three budgets. It runs before each dispatch, so
// completion on the final allowed action is never denied.
func (p *Process) breachedBudget() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actions >= p.maxActions {
		return fmt.Sprintf("action budget exhausted: %d actions dispatched", p.actions), true
	}
	if p.maxTokens > 0 && p.usage.TotalTokens > p.maxTokens {
		return fmt.Sprintf("token budget exhausted: %d of %d tokens spent", p.usage.TotalTokens, p.maxTokens), true
	}
	if p.budget > 0 {
		if elapsed := time.Since(p.started); elapsed > p.budget {
			return fmt.Sprintf("time budget exhausted after %s", elapsed.Round(time.Millisecond)), true
		}
	}
	return "", false
}

// wait suspends the process for user input. The journal stays subscribed so
// events published between Run and Resume still land in the history.
func (p *Process) wait(ctx context.Context, prompt string) *Result {
	p.mu.Lock()
	p.status = StatusWaiting
	p.reason = prompt
	p.mu.Unlock()
	p.bus.Publish(ctx, hooks.NewProcessWaitingEvent(p.id, p.def.Name, prompt))
	p.logger.Info(ctx, "process waiting for input", "process_id", p.id, "prompt", prompt)
	return p.Result()
}

// terminate records the final state, publishes the failure event for
// non-completed ends and releases the journal subscription.
func (p *Process) terminate(ctx context.Context, status Status, reason string, cause error) *Result {
	p.mu.Lock()
	p.status = status
	p.reason = reason
	p.finished = time.Now()
	p.mu.Unlock()
	if status != StatusCompleted {
		p.bus.Publish(ctx, hooks.NewProcessFailedEvent(p.id, p.def.Name, reason, cause))
	}
	if p.journal != nil {
		_ = p.journal.Close()
	}
	p.metrics.RecordTimer("process.duration", time.Since(p.started),
		"agent", p.def.Name, "status", string(status))
	p.logger.Info(ctx, "process finished",
		"process_id", p.id, "agent", p.def.Name, "status", string(status), "reason", reason)
	return p.Result()
}
