// Package hooks implements the in-process event fan-out every agent process
// publishes to. Process lifecycle events (created, action started/finished,
// goal achieved, failed, waiting) and interaction events (LLM request and
// response, tool call request and response) flow through a Bus to any number
// of subscribers. The bus is a side channel: it never sits on the critical
// path and a misbehaving subscriber cannot affect execution.
//
//	bus := hooks.NewBus(logger)
//	sub, _ := bus.Subscribe(hooks.SubscriberFunc(func(ctx context.Context, evt hooks.Event) error {
//	    if e, ok := evt.(*hooks.ActionFinishedEvent); ok {
//	        fmt.Printf("%s took %v\n", e.ActionName, e.Duration)
//	    }
//	    return nil
//	}))
//	defer sub.Close()
//
// Dispatch is synchronous on the publisher's goroutine. Events from one
// process reach each subscriber in the order they occurred; events from
// different processes interleave without ordering guarantees, so subscribers
// identify the source via ProcessID.
package hooks

import "context"

type (
	// Subscriber receives events published on a Bus. A returned error is
	// logged and swallowed; it never interrupts dispatch to the remaining
	// subscribers.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts an ordinary function to the Subscriber
	// interface. Function values are not comparable, so every Subscribe
	// call with a SubscriberFunc registers a fresh subscription.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is the handle returned by Subscribe. Close removes the
	// subscriber from the bus; it is idempotent and safe to call even if
	// the subscriber was already removed.
	Subscription interface {
		Close() error
	}
)

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// EventType enumerates the events broadcast on the bus.
type EventType string

const (
	// ProcessCreated fires once when an agent process is constructed.
	ProcessCreated EventType = "process_created"

	// ActionStarted fires when the dispatcher begins executing an action.
	ActionStarted EventType = "action_started"

	// ActionFinished fires when an action returns, successfully or not.
	ActionFinished EventType = "action_finished"

	// GoalAchieved fires when the process goal is satisfied and the
	// process completes.
	GoalAchieved EventType = "goal_achieved"

	// ProcessFailed fires when the process reaches FAILED, STUCK or
	// CANCELLED with the terminal reason.
	ProcessFailed EventType = "process_failed"

	// ProcessWaiting fires when an action requires user input and the
	// process suspends.
	ProcessWaiting EventType = "process_waiting"

	// ProcessResumed fires when a waiting process receives input and
	// re-enters the planner loop.
	ProcessResumed EventType = "process_resumed"

	// ReplanRequested fires when an action or tool asks the process to
	// re-enter planning instead of failing.
	ReplanRequested EventType = "replan_requested"

	// LlmRequest fires before a model call is issued.
	LlmRequest EventType = "llm_request"

	// LlmResponse fires after a model call returns, carrying the running
	// time and token usage.
	LlmResponse EventType = "llm_response"

	// ToolCallRequest fires before a decorated tool executes.
	ToolCallRequest EventType = "tool_call_request"

	// ToolCallResponse fires after a decorated tool returns, carrying the
	// string form of the result or the failure message.
	ToolCallResponse EventType = "tool_call_response"
)
