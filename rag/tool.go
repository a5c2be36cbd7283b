package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/telos-ai/telos/tools"
)

// SearchToolConfig shapes the tool NewSearchTool builds around a Store.
type SearchToolConfig struct {
	// Name defaults to "similarity_search".
	Name string
	// Description tells the model what the indexed corpus contains.
	Description string
	// Defaults seed every query: TopK, threshold and filters. The model
	// supplies only the query text and an optional top_k.
	Defaults Query
	// PostFilter routes calls through Search for stores without native
	// filtering. When false the store receives the query unchanged.
	PostFilter bool
	// Expansion tunes TopK inflation when PostFilter is set.
	Expansion ExpansionConfig
}

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Natural language description of what to retrieve"
		},
		"top_k": {
			"type": "integer",
			"minimum": 1,
			"description": "How many matches to return"
		}
	},
	"required": ["query"]
}`)

type searchPayload struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// NewSearchTool adapts a Store into a tool the model can call. The result
// text lists the ranked matches; the full matches ride along as the result
// artifact for engine-side consumers.
func NewSearchTool(store Store, cfg SearchToolConfig) tools.Tool {
	name := cfg.Name
	if name == "" {
		name = "similarity_search"
	}
	description := cfg.Description
	if description == "" {
		description = "Search the knowledge base for content similar to a query."
	}

	return tools.Func(name, description, searchSchema, func(ctx context.Context, input string) (tools.Result, error) {
		var payload searchPayload
		if err := json.Unmarshal([]byte(input), &payload); err != nil {
			return tools.Errorf("invalid search input: %v", err), nil
		}
		if strings.TrimSpace(payload.Query) == "" {
			return tools.Errorf("search query must not be empty"), nil
		}

		q := cfg.Defaults
		q.Text = payload.Query
		if payload.TopK > 0 {
			q.TopK = payload.TopK
		}

		var (
			matches []Match
			err     error
		)
		if cfg.PostFilter {
			matches, err = Search(ctx, store, q, cfg.Expansion)
		} else {
			matches, err = store.SimilaritySearch(ctx, q)
		}
		if err != nil {
			return tools.Result{}, fmt.Errorf("similarity search: %w", err)
		}
		if len(matches) == 0 {
			return tools.Text("No matches found."), nil
		}

		var b strings.Builder
		for i, m := range matches {
			fmt.Fprintf(&b, "%d. (%.2f) %s\n", i+1, m.Score, m.Content)
		}
		return tools.WithArtifact(b.String(), matches), nil
	})
}
