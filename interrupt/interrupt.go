// Package interrupt defines the control-flow signals actions and tools raise
// to drive the agent process state machine. Signals travel as error values so
// they propagate through ordinary return paths, but they are not failures:
// the exception-suppressing tool decorator, the tool loop and the process
// loop all match them with errors.As and re-raise them untouched. A replan
// signal re-enters the planner; a user-input signal suspends the process
// until Resume supplies the answer.
package interrupt

import "errors"

type (
	// ReplanRequested asks the owning process to discard the current plan
	// and re-enter the planner. Raised by tools or action executors when
	// they detect that the world changed underneath the plan.
	ReplanRequested struct {
		Reason string
	}

	// UserInputRequired suspends the owning process until the caller
	// supplies input through Resume. Prompt is the question to put to the
	// user.
	UserInputRequired struct {
		Prompt string
	}
)

// Replan returns a ReplanRequested signal.
func Replan(reason string) *ReplanRequested {
	return &ReplanRequested{Reason: reason}
}

// NeedInput returns a UserInputRequired signal.
func NeedInput(prompt string) *UserInputRequired {
	return &UserInputRequired{Prompt: prompt}
}

// Error implements error.
func (e *ReplanRequested) Error() string {
	if e.Reason == "" {
		return "replan requested"
	}
	return "replan requested: " + e.Reason
}

// Error implements error.
func (e *UserInputRequired) Error() string {
	if e.Prompt == "" {
		return "user input required"
	}
	return "user input required: " + e.Prompt
}

// IsSignal reports whether err is or wraps a control-flow signal. Layers that
// convert errors into data (suppression, transformation, retries) must check
// this first and pass signals through unchanged.
func IsSignal(err error) bool {
	var replan *ReplanRequested
	var input *UserInputRequired
	return errors.As(err, &replan) || errors.As(err, &input)
}

// AsReplan extracts a ReplanRequested signal from err.
func AsReplan(err error) (*ReplanRequested, bool) {
	var sig *ReplanRequested
	ok := errors.As(err, &sig)
	return sig, ok
}

// AsUserInput extracts a UserInputRequired signal from err.
func AsUserInput(err error) (*UserInputRequired, bool) {
	var sig *UserInputRequired
	ok := errors.As(err, &sig)
	return sig, ok
}
