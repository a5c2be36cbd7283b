package middleware

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"

	"github.com/telos-ai/telos/model"
)

type fakeClient struct {
	completeErr error

	completeCalls int
}

func (f *fakeClient) Complete(_ context.Context, _ model.Request) (*model.Response, error) {
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &model.Response{Candidates: []model.Message{model.AssistantMessage("ok")}}, nil
}

func TestAdaptiveRateLimiter_BackoffOnRateLimited(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60000, 60000)

	initialTPM := limiter.currentTPM

	client := &fakeClient{
		completeErr: &model.RateLimitError{Err: errors.New("throttled")},
	}
	wrapped := limiter.Middleware()(client)

	req := model.Request{
		Messages:  []model.Message{model.UserMessage("hello")},
		MaxTokens: 10,
	}

	_, err := wrapped.Complete(context.Background(), req)
	if !model.IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if limiter.currentTPM >= initialTPM {
		t.Fatalf("expected TPM to decrease, got %f (initial %f)",
			limiter.currentTPM, initialTPM)
	}
}

func TestAdaptiveRateLimiter_ProbeOnSuccess(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60000, 120000)

	limiter.mu.Lock()
	initialTPM := limiter.currentTPM
	limiter.recoveryRate = 1000
	limiter.mu.Unlock()

	client := &fakeClient{}
	wrapped := limiter.Middleware()(client)

	req := model.Request{
		Messages:  []model.Message{model.UserMessage("hello")},
		MaxTokens: 10,
	}

	_, err := wrapped.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if limiter.currentTPM <= initialTPM {
		t.Fatalf("expected TPM to increase, got %f (initial %f)",
			limiter.currentTPM, initialTPM)
	}
}

func TestAdaptiveRateLimiter_RespectsContextWhenQueued(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60, 60)

	limiter.mu.Lock()
	limiter.currentTPM = 60
	// An impossible limiter makes any non-zero token request fail
	// immediately. This exercises the error path without relying on timing.
	limiter.limiter = rate.NewLimiter(0, 0)
	limiter.mu.Unlock()

	client := &fakeClient{}
	wrapped := limiter.Middleware()(client)

	longText := make([]byte, 600)
	for i := range longText {
		longText[i] = 'a'
	}

	req := model.Request{
		Messages:  []model.Message{model.UserMessage(string(longText))},
		MaxTokens: 10,
	}

	_, err := wrapped.Complete(context.Background(), req)
	if err == nil {
		t.Fatal("expected limiter error")
	}
	if client.completeCalls != 0 {
		t.Fatalf("expected underlying client not to be called, got %d calls",
			client.completeCalls)
	}
}

func TestAdaptiveRateLimiter_IgnoresOrdinaryErrors(t *testing.T) {
	limiter := newAdaptiveRateLimiter(60000, 60000)
	initialTPM := limiter.currentTPM

	client := &fakeClient{completeErr: errors.New("bad request")}
	wrapped := limiter.Middleware()(client)

	req := model.Request{Messages: []model.Message{model.UserMessage("hello")}}
	if _, err := wrapped.Complete(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if limiter.currentTPM != initialTPM {
		t.Fatalf("expected TPM unchanged on non-throttle error, got %f (initial %f)",
			limiter.currentTPM, initialTPM)
	}
}

func TestEstimateTokensMonotonic(t *testing.T) {
	smallReq := model.Request{
		Messages: []model.Message{model.UserMessage("short")},
	}
	bigReq := model.Request{
		Messages: []model.Message{model.UserMessage("this is a much longer message")},
	}

	small := estimateTokens(smallReq)
	big := estimateTokens(bigReq)

	if small <= 0 {
		t.Fatalf("expected positive token estimate for small request, got %d",
			small)
	}
	if big <= small {
		t.Fatalf("expected larger estimate for larger request, small=%d big=%d",
			small, big)
	}
}

func TestEstimateTokensCountsToolCalls(t *testing.T) {
	plain := model.Request{
		Messages: []model.Message{model.UserMessage("hi")},
	}
	withCall := model.Request{
		Messages: []model.Message{
			model.UserMessage("hi"),
			{
				Role: model.RoleAssistant,
				ToolCalls: []model.ToolCall{
					{ID: "c1", Name: "lookup", Input: `{"city":"Paris","country":"France"}`},
				},
			},
		},
	}

	if estimateTokens(withCall) <= estimateTokens(plain) {
		t.Fatal("expected tool call payloads to increase the estimate")
	}
}
