// Package pulse relays bus events over goa.design/pulse streams backed by
// Redis. The Sink implements hooks.Subscriber: attached to a bus, it
// publishes every event as a JSON envelope on a per-process stream. The
// Subscriber consumes those streams and turns the envelopes back into
// hooks.Event values, so a separate service can observe live processes
// without sharing memory with the runtime.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telos-ai/telos/features/stream/pulse/clients/pulse"
	"github.com/telos-ai/telos/hooks"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target stream from an event. Defaults to
		// `process/<ProcessID>`.
		StreamID func(hooks.Event) (string, error)
		// MarshalEnvelope overrides the envelope serialization.
		MarshalEnvelope func(Envelope) ([]byte, error)
		// OnPublished, when set, runs after each successful publish. Use it
		// to record the last relayed entry ID for resume cursors. An error
		// from the callback is returned from Send.
		OnPublished func(context.Context, PublishedEvent) error
	}

	// Sink publishes bus events into Pulse streams. Safe for concurrent
	// Send calls.
	Sink struct {
		client      pulse.Client
		streamID    func(hooks.Event) (string, error)
		marshal     func(Envelope) ([]byte, error)
		onPublished func(context.Context, PublishedEvent) error
	}

	// Envelope is the JSON document published for each event. Identity
	// fields ride alongside the detail map produced by hooks.Detail so
	// consumers can rebuild per-process ordering without the Go event
	// types.
	Envelope struct {
		Type      string         `json:"type"`
		ProcessID string         `json:"process_id"`
		AgentName string         `json:"agent_name,omitempty"`
		Sequence  uint64         `json:"sequence"`
		Timestamp time.Time      `json:"timestamp"`
		Detail    map[string]any `json:"detail,omitempty"`
	}

	// PublishedEvent describes one successfully relayed event.
	PublishedEvent struct {
		// Event is the bus event that was published.
		Event hooks.Event
		// StreamID is the Pulse stream the envelope was added to.
		StreamID string
		// EntryID is the Redis entry ID assigned to the envelope.
		EntryID string
	}
)

// NewSink constructs a Pulse-backed sink. The Client field in opts is
// required; StreamID and MarshalEnvelope default to the built-in
// implementations.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Sink{
		client:      opts.Client,
		streamID:    defaultStreamID,
		marshal:     defaultMarshal,
		onPublished: opts.OnPublished,
	}
	if opts.StreamID != nil {
		s.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		s.marshal = opts.MarshalEnvelope
	}
	return s, nil
}

// HandleEvent implements hooks.Subscriber by delegating to Send, so the
// sink can be subscribed to a bus directly:
//
//	sink, _ := pulse.NewSink(pulse.Options{Client: client})
//	sub, _ := bus.Subscribe(sink)
//	defer sub.Close()
func (s *Sink) HandleEvent(ctx context.Context, evt hooks.Event) error {
	return s.Send(ctx, evt)
}

// Send publishes the event to its derived Pulse stream. The envelope keeps
// the event's own timestamp and sequence, so consumers replay the exact
// order the bus delivered.
func (s *Sink) Send(ctx context.Context, evt hooks.Event) error {
	streamID, err := s.streamID(evt)
	if err != nil {
		return err
	}
	handle, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      string(evt.Type()),
		ProcessID: evt.ProcessID(),
		AgentName: evt.AgentName(),
		Sequence:  evt.Sequence(),
		Timestamp: evt.Timestamp().UTC(),
		Detail:    hooks.Detail(evt),
	}
	payload, err := s.marshal(env)
	if err != nil {
		return err
	}
	id, err := handle.Add(ctx, env.Type, payload)
	if err != nil {
		return err
	}
	if s.onPublished != nil {
		return s.onPublished(ctx, PublishedEvent{Event: evt, StreamID: streamID, EntryID: id})
	}
	return nil
}

// Close releases resources owned by the sink by delegating to the Pulse
// client. Whether the Redis connection closes depends on the client
// implementation.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// defaultStreamID derives the stream name from the event's process ID.
func defaultStreamID(evt hooks.Event) (string, error) {
	if evt.ProcessID() == "" {
		return "", errors.New("event missing process id")
	}
	return fmt.Sprintf("process/%s", evt.ProcessID()), nil
}

// defaultMarshal serializes an envelope to JSON.
func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
