package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSuitableModel reports that no registered client matches the requested
// criteria. Fatal for the interaction that requested it.
var ErrNoSuitableModel = errors.New("no suitable model")

// RateLimitError reports provider throttling. It is transient: callers retry
// after RetryAfter when the provider supplied one.
type RateLimitError struct {
	// RetryAfter is the provider-suggested wait, zero when unknown.
	RetryAfter time.Duration
	Err        error
}

// Error implements error.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

// Unwrap returns the provider error.
func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is or wraps a RateLimitError.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}
