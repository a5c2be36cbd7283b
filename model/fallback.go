package model

import (
	"context"
	"errors"
)

type fallback struct {
	clients []Client
}

// Fallback returns a client that tries each given client in order, moving to
// the next only on transient failures (rate limits, timeouts, cancellation
// excluded). The last error is returned when all clients fail.
func Fallback(clients ...Client) Client {
	return &fallback{clients: clients}
}

// Complete implements Client.
func (f *fallback) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for _, c := range f.clients {
		resp, err := c.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !IsRateLimited(err) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no clients configured")
	}
	return nil, lastErr
}
