package tools

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type (
	// Scheduler is the admission-control seam for tool calls. The event
	// publishing decorator asks it for a delay before every invocation and
	// sleeps cooperatively; a zero return admits the call immediately.
	Scheduler interface {
		// Delay returns how long the caller must wait before invoking
		// the named tool.
		Delay(ctx context.Context, toolName string) time.Duration
	}

	// NopScheduler admits every call immediately.
	NopScheduler struct{}

	rateScheduler struct {
		limit rate.Limit
		burst int

		mu       sync.Mutex
		limiters map[string]*rate.Limiter
	}
)

// Delay implements Scheduler.
func (NopScheduler) Delay(context.Context, string) time.Duration { return 0 }

// NewRateScheduler builds a Scheduler that throttles each tool independently
// to callsPerSecond with the given burst. Limiter state is lazily created per
// tool name, so one noisy tool cannot starve the others.
func NewRateScheduler(callsPerSecond float64, burst int) Scheduler {
	if burst < 1 {
		burst = 1
	}
	return &rateScheduler{
		limit:    rate.Limit(callsPerSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Delay implements Scheduler by reserving a slot on the tool's limiter and
// returning the wait the reservation demands.
func (s *rateScheduler) Delay(_ context.Context, toolName string) time.Duration {
	s.mu.Lock()
	limiter, ok := s.limiters[toolName]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[toolName] = limiter
	}
	s.mu.Unlock()
	return limiter.Reserve().Delay()
}
