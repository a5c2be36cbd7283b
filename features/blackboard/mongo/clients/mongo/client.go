// Package mongo implements the low-level MongoDB client used by the
// blackboard persistence store. One document per process holds the serialized
// bindings and the appended event journal.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"
)

const (
	defaultCollection = "agent_processes"
	defaultTimeout    = 5 * time.Second
	clientName        = "blackboard-mongo"
)

type (
	// Client exposes Mongo-backed operations for process snapshots and
	// event journals.
	Client interface {
		health.Pinger

		SaveSnapshot(ctx context.Context, processID, agentName string, bindings []Binding) error
		LoadSnapshot(ctx context.Context, processID string) (Snapshot, error)
		AppendEvents(ctx context.Context, processID, agentName string, entries []Entry) error
		LoadJournal(ctx context.Context, processID string) ([]Entry, error)
	}

	// Binding is one serialized blackboard binding. Value holds the JSON
	// encoding of the bound Go value.
	Binding struct {
		Name     string `bson:"name"`
		TypeName string `bson:"type_name"`
		Value    string `bson:"value"`
	}

	// Entry is one journal line derived from a bus event.
	Entry struct {
		Type      string         `bson:"type"`
		Sequence  uint64         `bson:"sequence"`
		Timestamp time.Time      `bson:"timestamp"`
		Detail    map[string]any `bson:"detail,omitempty"`
	}

	// Snapshot is the persisted blackboard state of one process.
	Snapshot struct {
		ProcessID string
		AgentName string
		Bindings  []Binding
		UpdatedAt time.Time
	}

	// Options configures the Mongo client implementation.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	client struct {
		mongo   *mongodriver.Client
		coll    collection
		timeout time.Duration
	}
)

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	wrapper := mongoCollection{coll: mcoll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, wrapper, timeout)
}

func (c *client) Name() string {
	return clientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) SaveSnapshot(ctx context.Context, processID, agentName string, bindings []Binding) error {
	if processID == "" {
		return errors.New("process id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if bindings == nil {
		bindings = []Binding{}
	}
	filter := bson.M{"process_id": processID}
	update := bson.M{
		"$set": bson.M{
			"agent_name": agentName,
			"bindings":   bindings,
			"updated_at": time.Now().UTC(),
		},
	}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) LoadSnapshot(ctx context.Context, processID string) (Snapshot, error) {
	if processID == "" {
		return Snapshot{}, errors.New("process id is required")
	}
	doc, err := c.findProcess(ctx, processID)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Snapshot{ProcessID: processID}, nil
		}
		return Snapshot{}, err
	}
	return Snapshot{
		ProcessID: processID,
		AgentName: doc.AgentName,
		Bindings:  append([]Binding(nil), doc.Bindings...),
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (c *client) AppendEvents(ctx context.Context, processID, agentName string, entries []Entry) error {
	if processID == "" {
		return errors.New("process id is required")
	}
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// $push creates the array on upsert insert, so events stays out of
	// $setOnInsert to avoid conflicting update operators.
	filter := bson.M{"process_id": processID}
	update := bson.M{
		"$setOnInsert": bson.M{"agent_name": agentName},
		"$set":         bson.M{"updated_at": time.Now().UTC()},
		"$push":        bson.M{"events": bson.M{"$each": entries}},
	}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (c *client) LoadJournal(ctx context.Context, processID string) ([]Entry, error) {
	if processID == "" {
		return nil, errors.New("process id is required")
	}
	doc, err := c.findProcess(ctx, processID)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	if len(doc.Events) == 0 {
		return nil, nil
	}
	return append([]Entry(nil), doc.Events...), nil
}

func (c *client) findProcess(ctx context.Context, processID string) (*processDocument, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var doc processDocument
	if err := c.coll.FindOne(ctx, bson.M{"process_id": processID}).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type processDocument struct {
	ProcessID string    `bson:"process_id"`
	AgentName string    `bson:"agent_name,omitempty"`
	Bindings  []Binding `bson:"bindings,omitempty"`
	Events    []Entry   `bson:"events,omitempty"`
	UpdatedAt time.Time `bson:"updated_at,omitempty"`
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "process_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newClientWithCollection(mongoClient *mongodriver.Client, coll collection, timeout time.Duration) (*client, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		mongo:   mongoClient,
		coll:    coll,
		timeout: timeout,
	}, nil
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
