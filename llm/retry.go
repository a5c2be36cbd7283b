package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/telos-ai/telos/model"
)

// RetryConfig bounds transient-failure retries for one logical completion.
type RetryConfig struct {
	// MaxAttempts is the attempt budget including the initial attempt.
	// Zero or one means no retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay after each retry; 2.0 is
	// exponential.
	BackoffMultiplier float64
	// Jitter randomizes the delay by up to the given fraction to avoid
	// synchronized retries.
	Jitter float64
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// ExhaustedError is returned when the attempt budget ran out.
type ExhaustedError struct {
	// Attempts is the number of attempts made.
	Attempts int
	// TotalDuration is the wall-clock time spent across all attempts.
	TotalDuration time.Duration
	// LastError is the failure of the final attempt.
	LastError error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("llm: retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the final attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.LastError }

// ErrInterrupted marks failures caused by caller cancellation rather than by
// the model or the transport.
var ErrInterrupted = errors.New("llm: interrupted")

// Retriable classifies an attempt failure. Retriable failures are the ones a
// fresh attempt can plausibly fix: attempt timeouts, rate limits, transient
// network failures and malformed JSON from the model. Caller cancellation
// and exhausted budgets are final.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if model.IsRateLimited(err) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	// DNS failures satisfy net.Error too, so classify them first: a
	// temporary resolution failure is worth a retry even without a
	// timeout.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// retryDo runs fn under cfg, honoring RetryAfter hints from rate limit
// errors and aborting as soon as the context is done.
func retryDo(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retriable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		backoff := cfg.backoff(attempt)
		var limited *model.RateLimitError
		if errors.As(err, &limited) && limited.RetryAfter > 0 {
			backoff = limited.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return &ExhaustedError{
		Attempts:      cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

// backoff computes the delay before the retry following the given attempt.
func (cfg RetryConfig) backoff(attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter needs no crypto rand
	}
	return time.Duration(d)
}
