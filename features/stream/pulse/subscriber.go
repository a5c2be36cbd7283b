package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "github.com/telos-ai/telos/features/stream/pulse/clients/pulse"
	"github.com/telos-ai/telos/hooks"
)

type (
	// EnvelopeDecoder converts raw payloads read from Pulse into bus
	// events. Custom decoders can handle non-standard envelope formats.
	EnvelopeDecoder func([]byte) (hooks.Event, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume events. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to
		// "telos_subscriber".
		SinkName string
		// Buffer specifies the event channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes envelopes. Defaults to the built-in JSON
		// decoder, which produces *RemoteEvent values.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes Pulse streams and emits the relayed bus events.
	// It wraps a Pulse sink (consumer group) and decodes incoming payloads
	// into hooks.Event values.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
		decode EnvelopeDecoder
	}

	// RemoteEvent is the hooks.Event produced by the default envelope
	// decoder. It carries the flattened detail map from the envelope
	// instead of the original typed payload. Republishing a RemoteEvent on
	// a local bus preserves its sequence: the bus only stamps events that
	// carry none.
	RemoteEvent struct {
		EventType hooks.EventType
		Process   string
		Agent     string
		Seq       uint64
		At        time.Time
		Detail    map[string]any
	}
)

// Type implements hooks.Event.
func (e *RemoteEvent) Type() hooks.EventType { return e.EventType }

// ProcessID implements hooks.Event.
func (e *RemoteEvent) ProcessID() string { return e.Process }

// AgentName implements hooks.Event.
func (e *RemoteEvent) AgentName() string { return e.Agent }

// Timestamp implements hooks.Event.
func (e *RemoteEvent) Timestamp() time.Time { return e.At }

// Sequence implements hooks.Event.
func (e *RemoteEvent) Sequence() uint64 { return e.Seq }

// SetSequence implements hooks.Sequenced so a bus can stamp a remote event
// that arrived without a sequence.
func (e *RemoteEvent) SetSequence(n uint64) { e.Seq = n }

// NewSubscriber constructs a Pulse-backed subscriber. The Client field in
// opts is required; SinkName, Buffer, and Decoder default per the
// SubscriberOptions field documentation.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "telos_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		buffer: buffer,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and returns channels
// for events and errors. A goroutine consumes from the sink, decodes
// payloads, and emits the events. The returned cancel function stops
// consumption, closes the sink, and closes both channels.
//
// Usage:
//
//	events, errs, cancel, err := sub.Subscribe(ctx, "process/proc-42")
//	defer cancel()
//	for evt := range events {
//	    // observe event
//	}
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
	opts ...streamopts.Sink,
) (<-chan hooks.Event, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan hooks.Event, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, events, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return events, errs, cancelFunc, nil
}

// consume reads entries from the Pulse sink, decodes them, and emits the
// events on out, acking each entry after emission. Both channels close when
// ctx is canceled or the sink channel closes. A decode or ack failure is
// sent on errs and stops consumption.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- hooks.Event, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(entry.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, entry); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope into a RemoteEvent.
func decodeEnvelope(payload []byte) (hooks.Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &RemoteEvent{
		EventType: hooks.EventType(env.Type),
		Process:   env.ProcessID,
		Agent:     env.AgentName,
		Seq:       env.Sequence,
		At:        env.Timestamp,
		Detail:    env.Detail,
	}, nil
}
