package search

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/telos-ai/telos/process"
)

const defaultLimit = 50

// Cursor encodes pagination state for result listings.
type Cursor struct {
	FinishedAt time.Time
	ID         primitive.ObjectID
}

// Query captures filters for archived process outcomes. Zero fields do not
// filter.
type Query struct {
	Agents   []string
	Goals    []string
	Statuses []process.Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Cursor   *Cursor
}

// Record is one archived outcome as returned by the repository.
type Record struct {
	ProcessID    string
	AgentName    string
	GoalName     string
	Status       process.Status
	Reason       string
	LastMessage  string
	Actions      int
	InputTokens  int
	OutputTokens int
	Runtime      time.Duration
	FinishedAt   time.Time
	Labels       map[string]string
	DocumentID   primitive.ObjectID
}

// Page wraps one result page and the cursor to fetch the next.
type Page struct {
	Results    []Record
	NextCursor *Cursor
}

// Repository serves filtered listings of archived process outcomes, newest
// first.
type Repository struct {
	results resultCollection
	timeout time.Duration
}

// RepositoryOptions configures Repository.
type RepositoryOptions struct {
	Results resultCollection
	Timeout time.Duration
}

// NewRepository constructs a repository using the provided collection.
func NewRepository(opts RepositoryOptions) (*Repository, error) {
	if opts.Results == nil {
		return nil, errors.New("results collection is required")
	}
	return &Repository{results: opts.Results, timeout: opts.Timeout}, nil
}

// Results returns archived outcomes honoring the query.
func (r *Repository) Results(ctx context.Context, q Query) (Page, error) {
	filter := buildFilter(q)
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = defaultLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(limit)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	cur, err := r.results.Find(ctx, filter, opts)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	var page Page
	for cur.Next(ctx) {
		var doc resultDocument
		if err := cur.Decode(&doc); err != nil {
			return Page{}, err
		}
		page.Results = append(page.Results, doc.toRecord())
	}
	if len(page.Results) == int(limit) {
		last := page.Results[len(page.Results)-1]
		page.NextCursor = &Cursor{FinishedAt: last.FinishedAt, ID: last.DocumentID}
	}
	return page, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func buildFilter(q Query) bson.M {
	filter := bson.M{}
	addIn := func(field string, values []string) {
		if len(values) > 0 {
			filter[field] = bson.M{"$in": values}
		}
	}
	addIn("agent_name", q.Agents)
	addIn("goal_name", q.Goals)
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if q.From != nil || q.To != nil {
		rng := bson.M{}
		if q.From != nil {
			rng["$gte"] = *q.From
		}
		if q.To != nil {
			rng["$lte"] = *q.To
		}
		filter["finished_at"] = rng
	}
	if cursor := q.Cursor; cursor != nil && cursor.ID != primitive.NilObjectID {
		filter["$or"] = []bson.M{
			{"finished_at": bson.M{"$lt": cursor.FinishedAt}},
			{"finished_at": cursor.FinishedAt, "_id": bson.M{"$lt": cursor.ID}},
		}
	}
	return filter
}

type resultDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	ProcessID    string             `bson:"process_id"`
	AgentName    string             `bson:"agent_name"`
	GoalName     string             `bson:"goal_name"`
	Status       string             `bson:"status"`
	Reason       string             `bson:"reason"`
	LastMessage  string             `bson:"last_message"`
	Actions      int                `bson:"actions"`
	InputTokens  int                `bson:"input_tokens"`
	OutputTokens int                `bson:"output_tokens"`
	RuntimeMS    int64              `bson:"runtime_ms"`
	FinishedAt   time.Time          `bson:"finished_at"`
	Labels       map[string]string  `bson:"labels"`
}

func (d resultDocument) toRecord() Record {
	return Record{
		ProcessID:    d.ProcessID,
		AgentName:    d.AgentName,
		GoalName:     d.GoalName,
		Status:       process.Status(d.Status),
		Reason:       d.Reason,
		LastMessage:  d.LastMessage,
		Actions:      d.Actions,
		InputTokens:  d.InputTokens,
		OutputTokens: d.OutputTokens,
		Runtime:      time.Duration(d.RuntimeMS) * time.Millisecond,
		FinishedAt:   d.FinishedAt,
		Labels:       d.Labels,
		DocumentID:   d.ID,
	}
}
