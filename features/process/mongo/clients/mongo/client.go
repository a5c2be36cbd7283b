// Package mongo implements the low-level MongoDB client used by the process
// result archive. One document per process holds the flattened outcome.
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
	defaultCollection = "agent_results"
	defaultTimeout    = 5 * time.Second
	clientName        = "process-archive-mongo"
)

type (
	// Client exposes Mongo-backed operations for archived process
	// outcomes.
	Client interface {
		health.Pinger

		SaveResult(ctx context.Context, rec Record) error
		LoadResult(ctx context.Context, processID string) (Record, error)
	}

	// Record is the archived outcome of one process. Status holds the
	// lifecycle state string; durations are stored in milliseconds so the
	// collection stays queryable from any driver.
	Record struct {
		ProcessID    string            `bson:"process_id"`
		AgentName    string            `bson:"agent_name"`
		GoalName     string            `bson:"goal_name,omitempty"`
		Status       string            `bson:"status"`
		Reason       string            `bson:"reason,omitempty"`
		LastMessage  string            `bson:"last_message,omitempty"`
		Actions      int               `bson:"actions"`
		InputTokens  int               `bson:"input_tokens"`
		OutputTokens int               `bson:"output_tokens"`
		RuntimeMS    int64             `bson:"runtime_ms"`
		FinishedAt   time.Time         `bson:"finished_at"`
		Labels       map[string]string `bson:"labels,omitempty"`
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

// SaveResult upserts the record keyed by process id. A process resumed and
// finished again overwrites its earlier outcome.
func (c *client) SaveResult(ctx context.Context, rec Record) error {
	if rec.ProcessID == "" {
		return errors.New("process id is required")
	}
	if rec.AgentName == "" {
		return errors.New("agent name is required")
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	rec.FinishedAt = rec.FinishedAt.UTC()
	rec.Labels = cloneLabels(rec.Labels)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"process_id": rec.ProcessID}
	update := bson.M{"$set": rec}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// LoadResult returns the archived record. A process that was never archived
// yields a zero Record, not an error.
func (c *client) LoadResult(ctx context.Context, processID string) (Record, error) {
	if processID == "" {
		return Record{}, errors.New("process id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var rec Record
	if err := c.coll.FindOne(ctx, bson.M{"process_id": processID}).Decode(&rec); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Record{}, nil
		}
		return Record{}, err
	}
	rec.Labels = cloneLabels(rec.Labels)
	return rec, nil
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

func cloneLabels(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func ensureIndexes(ctx context.Context, coll collection) error {
	unique := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "process_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, unique); err != nil {
		return err
	}
	// The search repository filters by agent and time window.
	listing := mongodriver.IndexModel{
		Keys: bson.D{{Key: "agent_name", Value: 1}, {Key: "finished_at", Value: -1}},
	}
	_, err := coll.Indexes().CreateOne(ctx, listing)
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
