package mongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestEnsureIndexes(t *testing.T) {
	fc := newFakeCollection()
	err := ensureIndexes(context.Background(), fc)
	require.NoError(t, err)
	require.True(t, fc.indexCreated)
}

func TestLoadSnapshotMissingReturnsEmpty(t *testing.T) {
	client := mustNewTestClient()
	snap, err := client.LoadSnapshot(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Equal(t, "proc-1", snap.ProcessID)
	require.Empty(t, snap.Bindings)
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	client := mustNewTestClient()
	bindings := []Binding{
		{Name: "recipe", TypeName: "chef.Recipe", Value: `{"title":"flan"}`},
		{Name: "it", TypeName: "string", Value: `"done"`},
	}
	err := client.SaveSnapshot(context.Background(), "proc-1", "chef", bindings)
	require.NoError(t, err)

	snap, err := client.LoadSnapshot(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Equal(t, "chef", snap.AgentName)
	require.Len(t, snap.Bindings, 2)
	require.Equal(t, "recipe", snap.Bindings[0].Name)
	require.Equal(t, "chef.Recipe", snap.Bindings[0].TypeName)
	require.JSONEq(t, `{"title":"flan"}`, snap.Bindings[0].Value)
	require.False(t, snap.UpdatedAt.IsZero())
}

func TestSaveSnapshotOverwritesBindings(t *testing.T) {
	client := mustNewTestClient()
	err := client.SaveSnapshot(context.Background(), "proc-1", "chef", []Binding{
		{Name: "a", TypeName: "string", Value: `"old"`},
	})
	require.NoError(t, err)
	err = client.SaveSnapshot(context.Background(), "proc-1", "chef", []Binding{
		{Name: "b", TypeName: "string", Value: `"new"`},
	})
	require.NoError(t, err)

	snap, err := client.LoadSnapshot(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Len(t, snap.Bindings, 1)
	require.Equal(t, "b", snap.Bindings[0].Name)
}

func TestAppendAndLoadJournal(t *testing.T) {
	client := mustNewTestClient()
	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	err := client.AppendEvents(context.Background(), "proc-1", "chef", []Entry{
		{Type: "action_started", Sequence: 1, Timestamp: ts, Detail: map[string]any{"action": "bake"}},
		{Type: "action_finished", Sequence: 2, Timestamp: ts.Add(time.Second)},
	})
	require.NoError(t, err)
	err = client.AppendEvents(context.Background(), "proc-1", "chef", []Entry{
		{Type: "goal_achieved", Sequence: 3, Timestamp: ts.Add(2 * time.Second)},
	})
	require.NoError(t, err)

	journal, err := client.LoadJournal(context.Background(), "proc-1")
	require.NoError(t, err)
	require.Len(t, journal, 3)
	require.Equal(t, "action_started", journal[0].Type)
	require.Equal(t, uint64(1), journal[0].Sequence)
	require.Equal(t, "bake", journal[0].Detail["action"])
	require.Equal(t, "goal_achieved", journal[2].Type)
}

func TestAppendEventsSkipsEmptyBatch(t *testing.T) {
	fc := newFakeCollection()
	client, err := newClientWithCollection(nil, fc, time.Second)
	require.NoError(t, err)

	require.NoError(t, client.AppendEvents(context.Background(), "proc-1", "chef", nil))
	require.Zero(t, fc.updates)
}

func TestOperationsRequireProcessID(t *testing.T) {
	client := mustNewTestClient()

	err := client.SaveSnapshot(context.Background(), "", "chef", nil)
	require.EqualError(t, err, "process id is required")
	err = client.AppendEvents(context.Background(), "", "chef", []Entry{{Type: "x"}})
	require.EqualError(t, err, "process id is required")
	_, err = client.LoadSnapshot(context.Background(), "")
	require.EqualError(t, err, "process id is required")
	_, err = client.LoadJournal(context.Background(), "")
	require.EqualError(t, err, "process id is required")
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.EqualError(t, err, "mongo client is required")

	_, err = newClientWithCollection(nil, nil, time.Second)
	require.EqualError(t, err, "collection is required")
}

func mustNewTestClient() *client {
	fc := newFakeCollection()
	cl, err := newClientWithCollection(nil, fc, time.Second)
	if err != nil {
		panic(err)
	}
	return cl
}

// fakeCollection is a lightweight in-memory collection that mimics the subset
// of MongoDB behavior exercised by the client.
type fakeCollection struct {
	mu           sync.Mutex
	indexCreated bool
	updates      int
	docs         map[string]*processDocument
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]*processDocument)}
}

func (c *fakeCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := docKey(filter)
	doc, ok := c.docs[key]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	clone := *doc
	clone.Bindings = append([]Binding(nil), doc.Bindings...)
	clone.Events = append([]Entry(nil), doc.Events...)
	return fakeSingleResult{doc: &clone}
}

func (c *fakeCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
	key := docKey(filter)
	doc, ok := c.docs[key]
	if !ok {
		doc = &processDocument{ProcessID: key}
		c.docs[key] = doc
	}
	up, _ := update.(bson.M)
	if soi, ok := up["$setOnInsert"].(bson.M); ok && doc.AgentName == "" {
		if v, ok := soi["agent_name"].(string); ok {
			doc.AgentName = v
		}
	}
	if set, ok := up["$set"].(bson.M); ok {
		if v, ok := set["agent_name"].(string); ok {
			doc.AgentName = v
		}
		if v, ok := set["bindings"].([]Binding); ok {
			doc.Bindings = append([]Binding(nil), v...)
		}
		if v, ok := set["updated_at"].(time.Time); ok {
			doc.UpdatedAt = v
		}
	}
	if push, ok := up["$push"].(bson.M); ok {
		if ev, ok := push["events"].(bson.M); ok {
			if each, ok := ev["$each"].([]Entry); ok {
				doc.Events = append(doc.Events, each...)
			}
		}
	}
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{parent: c}
}

type fakeIndexView struct {
	parent *fakeCollection
}

func (v fakeIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	if len(model.Keys.(bson.D)) == 0 {
		return "", errors.New("missing keys")
	}
	v.parent.mu.Lock()
	v.parent.indexCreated = true
	v.parent.mu.Unlock()
	return "idx_process", nil
}

type fakeSingleResult struct {
	doc *processDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	dest, ok := val.(*processDocument)
	if !ok {
		return errors.New("unsupported decode target")
	}
	*dest = *r.doc
	return nil
}

func docKey(filter any) string {
	bsonFilter, _ := filter.(bson.M)
	id, _ := bsonFilter["process_id"].(string)
	return id
}
