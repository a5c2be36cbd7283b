package pulse

import (
	"context"
	"errors"

	clientspulse "github.com/telos-ai/telos/features/stream/pulse/clients/pulse"
)

// Relay wires one Pulse client into an agent deployment. It owns the
// publishing sink and spawns subscribers that reuse the same client, so a
// service manages a single Redis connection pool for both directions.
type Relay struct {
	sink   *Sink
	client clientspulse.Client
}

// RelayOptions configures the helper returned by NewRelay.
type RelayOptions struct {
	// Client is the Pulse client used for both publishing and subscribing.
	// Required; typically built via features/stream/pulse/clients/pulse.
	Client clientspulse.Client
	// Sink holds optional overrides for the publishing sink (stream ID
	// derivation, marshaling, publish callback). Leave zero-valued for
	// defaults.
	Sink Options
}

// NewRelay constructs helpers for publishing bus events to Pulse and
// consuming the resulting streams. Subscribe the relay's sink to the bus
// the runtime publishes on, and keep the relay around to open subscribers
// (an SSE fan-out, a mirror journal) later.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	sinkOpts := opts.Sink
	sinkOpts.Client = opts.Client
	sink, err := NewSink(sinkOpts)
	if err != nil {
		return nil, err
	}
	return &Relay{sink: sink, client: opts.Client}, nil
}

// Sink exposes the publishing sink. Subscribe it to a hooks.Bus.
func (r *Relay) Sink() *Sink { return r.sink }

// NewSubscriber constructs a subscriber that reuses the relay's client.
func (r *Relay) NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	opts.Client = r.client
	return NewSubscriber(opts)
}

// Close shuts down the publishing sink. Call during service shutdown after
// all subscribers have been canceled.
func (r *Relay) Close(ctx context.Context) error {
	return r.sink.Close(ctx)
}
