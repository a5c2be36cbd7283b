package hooks

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/telos-ai/telos/telemetry"
)

// Bus fans events out to subscribers. Publish is safe for concurrent use.
type Bus interface {
	// Subscribe registers sub and returns its subscription handle.
	// Registration is idempotent for comparable subscribers: subscribing
	// the same value twice returns the original subscription and the
	// subscriber still receives each event once.
	Subscribe(sub Subscriber) (Subscription, error)
	// Publish delivers event synchronously to every subscriber in
	// registration order. Subscriber errors and panics are logged on the
	// bus logger and swallowed. Events that implement Sequenced and carry
	// a zero sequence are stamped with the next position of their
	// process's logical clock before delivery, so every subscriber of one
	// bus observes a given process's events in the same total order.
	Publish(ctx context.Context, event Event)
}

type (
	bus struct {
		mu     sync.RWMutex
		logger telemetry.Logger
		subs   []*subscription
		keyed  map[Subscriber]*subscription

		seqMu sync.Mutex
		seqs  map[string]uint64
	}

	subscription struct {
		bus  *bus
		sub  Subscriber
		key  Subscriber
		once sync.Once
	}
)

// NewBus constructs a Bus. Subscriber failures are reported through logger;
// pass nil to discard them.
func NewBus(logger telemetry.Logger) Bus {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &bus{
		logger: logger,
		keyed:  make(map[Subscriber]*subscription),
		seqs:   make(map[string]uint64),
	}
}

// Subscribe implements Bus.
func (b *bus) Subscribe(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var key Subscriber
	if reflect.TypeOf(sub).Comparable() {
		key = sub
		if existing, ok := b.keyed[key]; ok {
			return existing, nil
		}
	}
	s := &subscription{bus: b, sub: sub, key: key}
	b.subs = append(b.subs, s)
	if key != nil {
		b.keyed[key] = s
	}
	return s, nil
}

// Publish implements Bus.
func (b *bus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}
	b.stamp(event)
	b.mu.RLock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()
	for _, s := range snapshot {
		b.deliver(ctx, s.sub, event)
	}
}

// stamp assigns the event the next sequence of its process's logical clock.
// Events already stamped (republished from a journal) keep their sequence.
func (b *bus) stamp(event Event) {
	seq, ok := event.(Sequenced)
	if !ok || event.Sequence() != 0 {
		return
	}
	b.seqMu.Lock()
	b.seqs[event.ProcessID()]++
	seq.SetSequence(b.seqs[event.ProcessID()])
	b.seqMu.Unlock()
}

// deliver invokes one subscriber, containing errors and panics so the
// remaining subscribers still receive the event.
func (b *bus) deliver(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event subscriber panicked",
				"event", string(event.Type()),
				"process_id", event.ProcessID(),
				"panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := sub.HandleEvent(ctx, event); err != nil {
		b.logger.Warn(ctx, "event subscriber failed",
			"event", string(event.Type()),
			"process_id", event.ProcessID(),
			"err", err.Error())
	}
}

// Close implements Subscription.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, candidate := range s.bus.subs {
			if candidate == s {
				s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
				break
			}
		}
		if s.key != nil {
			delete(s.bus.keyed, s.key)
		}
	})
	return nil
}
