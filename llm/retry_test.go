package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/telos-ai/telos/model"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryDoFirstAttemptSuccess(t *testing.T) {
	calls := 0
	err := retryDo(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("retryDo() = %v, want nil", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryDoRecoversFromTransientFailures(t *testing.T) {
	calls := 0
	err := retryDo(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryDo() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoStopsOnPermanentFailure(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := retryDo(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("retryDo() = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (permanent failures do not retry)", calls)
	}
}

func TestRetryDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := retryDo(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("retryDo() = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ExhaustedError should unwrap to the last failure, got %v", exhausted.LastError)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoHonorsRetryAfterHint(t *testing.T) {
	const hint = 60 * time.Millisecond
	calls := 0
	start := time.Now()
	err := retryDo(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &model.RateLimitError{RetryAfter: hint, Err: errors.New("throttled")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryDo() = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Fatalf("elapsed = %v, want at least the %v hint", elapsed, hint)
	}
}

func TestRetryDoCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := retryDo(ctx, fastConfig(), func(context.Context) error {
		return &model.RateLimitError{RetryAfter: time.Hour, Err: errors.New("throttled")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("retryDo() = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation took %v, the hour-long backoff was not interrupted", elapsed)
	}
}

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestRetriableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", &ExhaustedError{LastError: context.DeadlineExceeded}, false},
		{"rate limited", &model.RateLimitError{Err: errors.New("429")}, true},
		{"json syntax", &json.SyntaxError{}, true},
		{"json type mismatch", &json.UnmarshalTypeError{}, true},
		{"net timeout", &fakeNetError{timeout: true}, true},
		{"net non-timeout", &fakeNetError{}, false},
		{"temporary dns", &net.DNSError{IsTemporary: true}, true},
		{"permanent dns", &net.DNSError{IsNotFound: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retriable(tc.err); got != tc.want {
				t.Fatalf("Retriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := cfg.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
	for i := 0; i < 1000; i++ {
		got := cfg.backoff(3) // 400ms nominal
		lo, hi := 360*time.Millisecond, 440*time.Millisecond
		if got < lo || got > hi {
			t.Fatalf("backoff(3) = %v, want within [%v, %v]", got, lo, hi)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"bare array", `[1,2]`, `[1,2]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Sure:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"prose around object", `The answer is {"a":1} as requested.`, `{"a":1}`},
		{"leading and trailing space", "  {\"a\":1}\n", `{"a":1}`},
		{"no json at all", "forty-two", "forty-two"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.text); got != tc.want {
				t.Fatalf("extractJSON(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestValidateAgainstReportsLeafViolations(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"age":  {"type": "integer", "minimum": 1},
			"name": {"type": "string"}
		},
		"required": ["age", "name"]
	}`)

	violations, err := validateAgainst(schema, []byte(`{"age":0}`))
	if err != nil {
		t.Fatalf("validateAgainst() error = %v", err)
	}
	if len(violations) == 0 {
		t.Fatal("expected violations for a document missing name with age 0")
	}
	var sawAge bool
	for _, v := range violations {
		if v == "" {
			t.Fatal("empty violation message")
		}
		if strings.Contains(v, "/age") {
			sawAge = true
		}
	}
	if !sawAge {
		t.Fatalf("violations %q do not point at /age", violations)
	}

	violations, err = validateAgainst(schema, []byte(`{"age":30,"name":"Ada"}`))
	if err != nil {
		t.Fatalf("validateAgainst() error = %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("valid document produced violations %q", violations)
	}
}

func TestValidateAgainstRejectsBrokenSchema(t *testing.T) {
	if _, err := validateAgainst(json.RawMessage(`{`), []byte(`{}`)); err == nil {
		t.Fatal("expected an error for an unparseable schema")
	}
}
