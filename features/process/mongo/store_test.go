package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	clientsmongo "github.com/telos-ai/telos/features/process/mongo/clients/mongo"
	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/process"
)

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(Options{})
	require.EqualError(t, err, "client is required")
}

func TestNewStoreFromMongoValidatesOptions(t *testing.T) {
	_, err := NewStoreFromMongo(clientsmongo.Options{})
	require.EqualError(t, err, "mongo client is required")
}

func TestSaveResultFlattensOutcome(t *testing.T) {
	fc := &fakeClient{}
	store, err := NewStore(Options{Client: fc})
	require.NoError(t, err)

	res := &process.Result{
		ProcessID:   "proc-1",
		Status:      process.StatusCompleted,
		LastMessage: "dinner is served",
		Usage:       model.TokenUsage{InputTokens: 1200, OutputTokens: 300},
		Actions:     4,
		Elapsed:     5400 * time.Millisecond,
	}
	require.NoError(t, store.SaveResult(context.Background(), "chef", "meal_ready", res))

	require.Len(t, fc.saved, 1)
	rec := fc.saved[0]
	require.Equal(t, "proc-1", rec.ProcessID)
	require.Equal(t, "chef", rec.AgentName)
	require.Equal(t, "meal_ready", rec.GoalName)
	require.Equal(t, string(process.StatusCompleted), rec.Status)
	require.Equal(t, "dinner is served", rec.LastMessage)
	require.Equal(t, 4, rec.Actions)
	require.Equal(t, 1200, rec.InputTokens)
	require.Equal(t, 300, rec.OutputTokens)
	require.Equal(t, int64(5400), rec.RuntimeMS)
	require.True(t, rec.FinishedAt.IsZero())
}

func TestSaveResultRequiresResult(t *testing.T) {
	store, err := NewStore(Options{Client: &fakeClient{}})
	require.NoError(t, err)
	require.EqualError(t, store.SaveResult(context.Background(), "chef", "", nil), "result is required")
}

func TestLoadDelegatesToClient(t *testing.T) {
	want := clientsmongo.Record{ProcessID: "proc-1", AgentName: "chef", Status: "COMPLETED"}
	fc := &fakeClient{loaded: want}
	store, err := NewStore(Options{Client: fc})
	require.NoError(t, err)

	got, err := store.Load(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, "proc-1", fc.loadID)
}

type fakeClient struct {
	saved  []clientsmongo.Record
	loaded clientsmongo.Record
	loadID string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) SaveResult(ctx context.Context, rec clientsmongo.Record) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeClient) LoadResult(ctx context.Context, processID string) (clientsmongo.Record, error) {
	f.loadID = processID
	return f.loaded, nil
}
