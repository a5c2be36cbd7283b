package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telos-ai/telos/blackboard"
	clientsmongo "github.com/telos-ai/telos/features/blackboard/mongo/clients/mongo"
	"github.com/telos-ai/telos/hooks"
)

// Options configures the Store and Recorder wrappers.
type Options struct {
	Client clientsmongo.Client
}

// Store persists blackboard snapshots by delegating to the Mongo client.
// Values are serialized to JSON alongside their type names so snapshots stay
// readable without the Go types that produced them.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Mongo-backed snapshot store using the provided client.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: opts.Client}, nil
}

// NewStoreFromMongo is a helper that instantiates the underlying client using
// the given options.
func NewStoreFromMongo(opts clientsmongo.Options) (*Store, error) {
	client, err := clientsmongo.New(opts)
	if err != nil {
		return nil, err
	}
	return NewStore(Options{Client: client})
}

// SaveSnapshot serializes the bindings and upserts the snapshot for the
// process. Pass process.Result.Snapshot to persist a finished run.
func (s *Store) SaveSnapshot(ctx context.Context, processID, agentName string, bindings []blackboard.Binding) error {
	docs, err := encodeBindings(bindings)
	if err != nil {
		return err
	}
	return s.client.SaveSnapshot(ctx, processID, agentName, docs)
}

// LoadSnapshot returns the serialized snapshot for the process. A process
// that was never saved yields an empty snapshot, not an error.
func (s *Store) LoadSnapshot(ctx context.Context, processID string) (clientsmongo.Snapshot, error) {
	return s.client.LoadSnapshot(ctx, processID)
}

// LoadJournal returns the persisted event journal for the process in append
// order.
func (s *Store) LoadJournal(ctx context.Context, processID string) ([]clientsmongo.Entry, error) {
	return s.client.LoadJournal(ctx, processID)
}

func encodeBindings(bindings []blackboard.Binding) ([]clientsmongo.Binding, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	docs := make([]clientsmongo.Binding, len(bindings))
	for i, b := range bindings {
		data, err := json.Marshal(b.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal binding %q: %w", b.Name, err)
		}
		docs[i] = clientsmongo.Binding{
			Name:     b.Name,
			TypeName: b.TypeName,
			Value:    string(data),
		}
	}
	return docs, nil
}

// Recorder is a bus subscriber that appends every published event to the
// process journal. Subscribe it before starting processes:
//
//	rec, _ := mongo.NewRecorder(mongo.Options{Client: client})
//	sub, _ := bus.Subscribe(rec)
//	defer sub.Close()
type Recorder struct {
	client clientsmongo.Client
}

// NewRecorder builds a journal recorder using the provided client.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	return &Recorder{client: opts.Client}, nil
}

// HandleEvent implements hooks.Subscriber. The event payload is flattened
// with hooks.Detail so the journal stays queryable without the Go event
// types.
func (r *Recorder) HandleEvent(ctx context.Context, evt hooks.Event) error {
	entry := clientsmongo.Entry{
		Type:      string(evt.Type()),
		Sequence:  evt.Sequence(),
		Timestamp: evt.Timestamp(),
		Detail:    hooks.Detail(evt),
	}
	return r.client.AppendEvents(ctx, evt.ProcessID(), evt.AgentName(), []clientsmongo.Entry{entry})
}
