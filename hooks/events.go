package hooks

import (
	"time"

	"github.com/telos-ai/telos/model"
)

type (
	// Event is implemented by every value published on the Bus. Subscribers
	// type-switch on the concrete event structs to reach typed payloads:
	//
	//	func (s *journal) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.LlmResponseEvent:
	//	        s.tokens += e.Usage.TotalTokens
	//	    case *hooks.ProcessFailedEvent:
	//	        s.reason = e.Reason
	//	    }
	//	    return nil
	//	}
	Event interface {
		Type() EventType
		ProcessID() string
		AgentName() string
		Timestamp() time.Time
		// Sequence is the position of the event in the owning process's
		// logical clock, starting at 1. Events from one process reach
		// every subscriber in ascending sequence order.
		Sequence() uint64
	}

	// ProcessCreatedEvent fires once when an agent process is constructed.
	ProcessCreatedEvent struct {
		baseEvent
		// Goal names the goal the process pursues, empty when the agent
		// declares none.
		Goal string
	}

	// ActionStartedEvent fires when the dispatcher begins an action.
	ActionStartedEvent struct {
		baseEvent
		ActionName string
	}

	// ActionFinishedEvent fires when an action returns.
	ActionFinishedEvent struct {
		baseEvent
		ActionName string
		// Duration is the wall-clock execution time of the action.
		Duration time.Duration
		// Bindings lists the blackboard names the action wrote.
		Bindings []string
		// Error carries the action failure, nil on success.
		Error error
	}

	// GoalAchievedEvent fires when the process goal is satisfied.
	GoalAchievedEvent struct {
		baseEvent
		GoalName string
	}

	// ProcessFailedEvent fires when the process terminates in FAILED,
	// STUCK or CANCELLED.
	ProcessFailedEvent struct {
		baseEvent
		// Reason is the terminal reason string exposed on the result.
		Reason string
		// Error is the underlying failure, nil for budget or planner
		// dead-end terminations.
		Error error
	}

	// ProcessWaitingEvent fires when the process suspends for user input.
	ProcessWaitingEvent struct {
		baseEvent
		// Prompt is the question the suspending action asked.
		Prompt string
	}

	// ProcessResumedEvent fires when a waiting process receives input.
	ProcessResumedEvent struct {
		baseEvent
	}

	// ReplanRequestedEvent fires when an action or tool raised a replan
	// signal and the process re-entered the planner.
	ReplanRequestedEvent struct {
		baseEvent
		// ActionName is the action that raised the signal.
		ActionName string
		Reason     string
	}

	// LlmRequestEvent fires before a model call.
	LlmRequestEvent struct {
		baseEvent
		// InteractionID correlates the request with its response across
		// retries of the same interaction.
		InteractionID string
		// Criteria describes the model selection (name or tier).
		Criteria string
		// Messages is the history length at call time.
		Messages int
		// Tools lists the tool names offered to the model.
		Tools []string
	}

	// LlmResponseEvent fires after a model call returns.
	LlmResponseEvent struct {
		baseEvent
		InteractionID string
		// Runtime is the wall-clock duration of the call including retries.
		Runtime time.Duration
		Usage   model.TokenUsage
	}

	// ToolCallRequestEvent fires before a decorated tool executes.
	ToolCallRequestEvent struct {
		baseEvent
		ToolName string
		// Payload is the JSON input forwarded to the tool.
		Payload string
	}

	// ToolCallResponseEvent fires after a decorated tool returns.
	ToolCallResponseEvent struct {
		baseEvent
		ToolName string
		// Result is the string form of the tool result, empty on failure.
		Result string
		// Failure is the error class and message when the tool failed.
		Failure  string
		Duration time.Duration
	}

	// baseEvent holds the fields shared by all events and implements the
	// identity portion of the Event interface. The bus stamps the sequence
	// just before delivery.
	baseEvent struct {
		processID string
		agentName string
		timestamp time.Time
		sequence  uint64
	}
)

// NewProcessCreatedEvent constructs a ProcessCreatedEvent.
func NewProcessCreatedEvent(processID, agentName, goal string) *ProcessCreatedEvent {
	return &ProcessCreatedEvent{baseEvent: newBaseEvent(processID, agentName), Goal: goal}
}

// NewActionStartedEvent constructs an ActionStartedEvent.
func NewActionStartedEvent(processID, agentName, actionName string) *ActionStartedEvent {
	return &ActionStartedEvent{baseEvent: newBaseEvent(processID, agentName), ActionName: actionName}
}

// NewActionFinishedEvent constructs an ActionFinishedEvent. Bindings lists the
// blackboard names written; err is nil on success.
func NewActionFinishedEvent(processID, agentName, actionName string, duration time.Duration, bindings []string, err error) *ActionFinishedEvent {
	return &ActionFinishedEvent{
		baseEvent:  newBaseEvent(processID, agentName),
		ActionName: actionName,
		Duration:   duration,
		Bindings:   bindings,
		Error:      err,
	}
}

// NewGoalAchievedEvent constructs a GoalAchievedEvent.
func NewGoalAchievedEvent(processID, agentName, goalName string) *GoalAchievedEvent {
	return &GoalAchievedEvent{baseEvent: newBaseEvent(processID, agentName), GoalName: goalName}
}

// NewProcessFailedEvent constructs a ProcessFailedEvent. err may be nil when
// the termination has no underlying error.
func NewProcessFailedEvent(processID, agentName, reason string, err error) *ProcessFailedEvent {
	return &ProcessFailedEvent{baseEvent: newBaseEvent(processID, agentName), Reason: reason, Error: err}
}

// NewProcessWaitingEvent constructs a ProcessWaitingEvent.
func NewProcessWaitingEvent(processID, agentName, prompt string) *ProcessWaitingEvent {
	return &ProcessWaitingEvent{baseEvent: newBaseEvent(processID, agentName), Prompt: prompt}
}

// NewProcessResumedEvent constructs a ProcessResumedEvent.
func NewProcessResumedEvent(processID, agentName string) *ProcessResumedEvent {
	return &ProcessResumedEvent{baseEvent: newBaseEvent(processID, agentName)}
}

// NewReplanRequestedEvent constructs a ReplanRequestedEvent.
func NewReplanRequestedEvent(processID, agentName, actionName, reason string) *ReplanRequestedEvent {
	return &ReplanRequestedEvent{
		baseEvent:  newBaseEvent(processID, agentName),
		ActionName: actionName,
		Reason:     reason,
	}
}

// NewLlmRequestEvent constructs an LlmRequestEvent.
func NewLlmRequestEvent(processID, agentName, interactionID, criteria string, messages int, toolNames []string) *LlmRequestEvent {
	return &LlmRequestEvent{
		baseEvent:     newBaseEvent(processID, agentName),
		InteractionID: interactionID,
		Criteria:      criteria,
		Messages:      messages,
		Tools:         toolNames,
	}
}

// NewLlmResponseEvent constructs an LlmResponseEvent.
func NewLlmResponseEvent(processID, agentName, interactionID string, runtime time.Duration, usage model.TokenUsage) *LlmResponseEvent {
	return &LlmResponseEvent{
		baseEvent:     newBaseEvent(processID, agentName),
		InteractionID: interactionID,
		Runtime:       runtime,
		Usage:         usage,
	}
}

// NewToolCallRequestEvent constructs a ToolCallRequestEvent.
func NewToolCallRequestEvent(processID, agentName, toolName, payload string) *ToolCallRequestEvent {
	return &ToolCallRequestEvent{
		baseEvent: newBaseEvent(processID, agentName),
		ToolName:  toolName,
		Payload:   payload,
	}
}

// NewToolCallResponseEvent constructs a ToolCallResponseEvent. Exactly one of
// result and failure is set.
func NewToolCallResponseEvent(processID, agentName, toolName, result, failure string, duration time.Duration) *ToolCallResponseEvent {
	return &ToolCallResponseEvent{
		baseEvent: newBaseEvent(processID, agentName),
		ToolName:  toolName,
		Result:    result,
		Failure:   failure,
		Duration:  duration,
	}
}

// ProcessID returns the identifier of the process that published the event.
func (e baseEvent) ProcessID() string { return e.processID }

// AgentName returns the name of the agent definition the process runs.
func (e baseEvent) AgentName() string { return e.agentName }

// Timestamp returns when the event was constructed.
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// Sequence returns the event's position in the process logical clock.
func (e baseEvent) Sequence() uint64 { return e.sequence }

// SetSequence stamps the event with its position in the process logical
// clock. The bus calls this once, just before delivery.
func (e *baseEvent) SetSequence(n uint64) { e.sequence = n }

func newBaseEvent(processID, agentName string) baseEvent {
	return baseEvent{processID: processID, agentName: agentName, timestamp: time.Now()}
}

// Sequenced is implemented by events whose sequence the bus stamps before
// delivery. Events republished from a journal arrive already stamped and
// keep their original sequence.
type Sequenced interface {
	SetSequence(n uint64)
}

// Type method implementations

func (e *ProcessCreatedEvent) Type() EventType   { return ProcessCreated }
func (e *ActionStartedEvent) Type() EventType    { return ActionStarted }
func (e *ActionFinishedEvent) Type() EventType   { return ActionFinished }
func (e *GoalAchievedEvent) Type() EventType     { return GoalAchieved }
func (e *ProcessFailedEvent) Type() EventType    { return ProcessFailed }
func (e *ProcessWaitingEvent) Type() EventType   { return ProcessWaiting }
func (e *ProcessResumedEvent) Type() EventType   { return ProcessResumed }
func (e *ReplanRequestedEvent) Type() EventType  { return ReplanRequested }
func (e *LlmRequestEvent) Type() EventType       { return LlmRequest }
func (e *LlmResponseEvent) Type() EventType      { return LlmResponse }
func (e *ToolCallRequestEvent) Type() EventType  { return ToolCallRequest }
func (e *ToolCallResponseEvent) Type() EventType { return ToolCallResponse }
