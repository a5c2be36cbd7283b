package hooks_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/telos-ai/telos/hooks"
)

// recordingSubscriber is comparable by pointer, so subscribing the same
// instance twice must be idempotent.
type recordingSubscriber struct {
	mu     sync.Mutex
	events []hooks.Event
	err    error
	panics bool
}

func (r *recordingSubscriber) HandleEvent(_ context.Context, evt hooks.Event) error {
	if r.panics {
		panic("subscriber exploded")
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return r.err
}

func (r *recordingSubscriber) seen() []hooks.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hooks.Event, len(r.events))
	copy(out, r.events)
	return out
}

// captureLogger records messages so tests can assert failure reporting.
type captureLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *captureLogger) Debug(context.Context, string, ...any) {}
func (l *captureLogger) Info(context.Context, string, ...any)  {}

func (l *captureLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	l.warnings = append(l.warnings, msg)
	l.mu.Unlock()
}

func (l *captureLogger) Error(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := hooks.NewBus(nil)
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := bus.Subscribe(hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
			order = append(order, name)
			return nil
		}))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	bus.Publish(context.Background(), hooks.NewProcessCreatedEvent("proc-1", "chef", "meal_ready"))

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("delivery order = %v", order)
	}
}

func TestSubscribersSeeIdenticalEventOrder(t *testing.T) {
	bus := hooks.NewBus(nil)
	early := &recordingSubscriber{}
	late := &recordingSubscriber{}
	if _, err := bus.Subscribe(early); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := bus.Subscribe(late); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx := context.Background()
	bus.Publish(ctx, hooks.NewProcessCreatedEvent("proc-a", "chef", "meal_ready"))
	bus.Publish(ctx, hooks.NewActionStartedEvent("proc-b", "critic", "review"))
	bus.Publish(ctx, hooks.NewActionStartedEvent("proc-a", "chef", "bake"))
	bus.Publish(ctx, hooks.NewActionFinishedEvent("proc-a", "chef", "bake", 0, nil, nil))
	bus.Publish(ctx, hooks.NewGoalAchievedEvent("proc-a", "chef", "meal_ready"))

	a, b := early.seen(), late.seen()
	if len(a) != 5 || len(b) != 5 {
		t.Fatalf("len(early) = %d, len(late) = %d, want 5 each", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs between subscribers: %v vs %v", i, a[i].Type(), b[i].Type())
		}
	}
}

func TestPublishStampsSequencePerProcess(t *testing.T) {
	bus := hooks.NewBus(nil)
	sub := &recordingSubscriber{}
	if _, err := bus.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Publish(context.Background(), hooks.NewActionStartedEvent("proc-a", "chef", "bake"))
	bus.Publish(context.Background(), hooks.NewActionFinishedEvent("proc-a", "chef", "bake", 0, nil, nil))
	bus.Publish(context.Background(), hooks.NewActionStartedEvent("proc-b", "chef", "stir"))

	seen := sub.seen()
	if len(seen) != 3 {
		t.Fatalf("len(seen) = %d", len(seen))
	}
	got := []uint64{seen[0].Sequence(), seen[1].Sequence(), seen[2].Sequence()}
	if got[0] != 1 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("sequences = %v, want per-process clocks 1, 2, 1", got)
	}
}

func TestPublishKeepsExistingSequence(t *testing.T) {
	bus := hooks.NewBus(nil)
	sub := &recordingSubscriber{}
	if _, err := bus.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := hooks.NewGoalAchievedEvent("proc-a", "chef", "meal_ready")
	evt.SetSequence(41)
	bus.Publish(context.Background(), evt)

	seen := sub.seen()
	if len(seen) != 1 || seen[0].Sequence() != 41 {
		t.Fatalf("republished sequence = %d, want 41", seen[0].Sequence())
	}

	// The local clock is untouched by republished events.
	bus.Publish(context.Background(), hooks.NewActionStartedEvent("proc-a", "chef", "bake"))
	seen = sub.seen()
	if seen[1].Sequence() != 1 {
		t.Fatalf("fresh sequence = %d, want 1", seen[1].Sequence())
	}
}

func TestSubscribeIdempotentForComparableSubscribers(t *testing.T) {
	bus := hooks.NewBus(nil)
	sub := &recordingSubscriber{}
	first, err := bus.Subscribe(sub)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	second, err := bus.Subscribe(sub)
	if err != nil {
		t.Fatalf("Subscribe again: %v", err)
	}
	if first != second {
		t.Fatal("re-subscribing the same value must return the original subscription")
	}

	bus.Publish(context.Background(), hooks.NewProcessResumedEvent("proc-1", "chef"))
	if n := len(sub.seen()); n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}
}

func TestSubscriberFuncsRegisterSeparately(t *testing.T) {
	bus := hooks.NewBus(nil)
	var count int
	fn := hooks.SubscriberFunc(func(context.Context, hooks.Event) error {
		count++
		return nil
	})
	if _, err := bus.Subscribe(fn); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := bus.Subscribe(fn); err != nil {
		t.Fatalf("Subscribe again: %v", err)
	}

	bus.Publish(context.Background(), hooks.NewProcessResumedEvent("proc-1", "chef"))
	if count != 2 {
		t.Fatalf("deliveries = %d, want one per registration", count)
	}
}

func TestPanickingSubscriberIsContained(t *testing.T) {
	logger := &captureLogger{}
	bus := hooks.NewBus(logger)
	bad := &recordingSubscriber{panics: true}
	good := &recordingSubscriber{}
	if _, err := bus.Subscribe(bad); err != nil {
		t.Fatalf("Subscribe bad: %v", err)
	}
	if _, err := bus.Subscribe(good); err != nil {
		t.Fatalf("Subscribe good: %v", err)
	}

	bus.Publish(context.Background(), hooks.NewProcessFailedEvent("proc-1", "chef", "oven broke", nil))

	if n := len(good.seen()); n != 1 {
		t.Fatalf("good subscriber deliveries = %d, want 1", n)
	}
	if len(logger.errors) != 1 {
		t.Fatalf("logged errors = %v", logger.errors)
	}
}

func TestFailingSubscriberIsLoggedAndSkipped(t *testing.T) {
	logger := &captureLogger{}
	bus := hooks.NewBus(logger)
	bad := &recordingSubscriber{err: errors.New("disk full")}
	good := &recordingSubscriber{}
	if _, err := bus.Subscribe(bad); err != nil {
		t.Fatalf("Subscribe bad: %v", err)
	}
	if _, err := bus.Subscribe(good); err != nil {
		t.Fatalf("Subscribe good: %v", err)
	}

	bus.Publish(context.Background(), hooks.NewProcessWaitingEvent("proc-1", "chef", "salt or sugar?"))

	if n := len(good.seen()); n != 1 {
		t.Fatalf("good subscriber deliveries = %d, want 1", n)
	}
	if len(logger.warnings) != 1 {
		t.Fatalf("logged warnings = %v", logger.warnings)
	}
}

func TestCloseRemovesSubscriber(t *testing.T) {
	bus := hooks.NewBus(nil)
	sub := &recordingSubscriber{}
	handle, err := bus.Subscribe(sub)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Publish(context.Background(), hooks.NewProcessResumedEvent("proc-1", "chef"))
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	bus.Publish(context.Background(), hooks.NewProcessResumedEvent("proc-1", "chef"))

	if n := len(sub.seen()); n != 1 {
		t.Fatalf("deliveries after Close = %d, want 1", n)
	}

	// A closed subscriber can register again.
	if _, err := bus.Subscribe(sub); err != nil {
		t.Fatalf("re-Subscribe: %v", err)
	}
	bus.Publish(context.Background(), hooks.NewProcessResumedEvent("proc-1", "chef"))
	if n := len(sub.seen()); n != 2 {
		t.Fatalf("deliveries after re-subscribe = %d, want 2", n)
	}
}

func TestSubscribeRejectsNil(t *testing.T) {
	bus := hooks.NewBus(nil)
	if _, err := bus.Subscribe(nil); err == nil {
		t.Fatal("Subscribe(nil) succeeded")
	}
}

func TestPublishIgnoresNilEvent(t *testing.T) {
	bus := hooks.NewBus(nil)
	sub := &recordingSubscriber{}
	if _, err := bus.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.Publish(context.Background(), nil)
	if n := len(sub.seen()); n != 0 {
		t.Fatalf("deliveries = %d, want 0", n)
	}
}
