package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/telos-ai/telos/features/process/mongo/clients/mongo"
	"github.com/telos-ai/telos/process"
)

// Options configures the Store.
type Options struct {
	Client clientsmongo.Client
}

// Store archives process outcomes by delegating to the Mongo client. One
// record per process; a resumed process overwrites its earlier outcome when
// it stops again.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Mongo-backed result archive using the provided client.
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

// Save persists the record as-is.
func (s *Store) Save(ctx context.Context, rec clientsmongo.Record) error {
	return s.client.SaveResult(ctx, rec)
}

// SaveResult flattens the outcome into a record and persists it. The snapshot
// and event history are not part of the archive; persist those with the
// blackboard store if they are needed later.
func (s *Store) SaveResult(ctx context.Context, agentName, goalName string, res *process.Result) error {
	if res == nil {
		return errors.New("result is required")
	}
	return s.client.SaveResult(ctx, RecordFromResult(agentName, goalName, res))
}

// Load returns the archived record for the process.
func (s *Store) Load(ctx context.Context, processID string) (clientsmongo.Record, error) {
	return s.client.LoadResult(ctx, processID)
}

// RecordFromResult maps a process outcome onto the archival record.
// FinishedAt is left zero so the client stamps the save time.
func RecordFromResult(agentName, goalName string, res *process.Result) clientsmongo.Record {
	return clientsmongo.Record{
		ProcessID:    res.ProcessID,
		AgentName:    agentName,
		GoalName:     goalName,
		Status:       string(res.Status),
		Reason:       res.Reason,
		LastMessage:  res.LastMessage,
		Actions:      res.Actions,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		RuntimeMS:    res.Elapsed.Milliseconds(),
	}
}
