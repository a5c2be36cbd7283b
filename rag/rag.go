// Package rag defines the vector search surface retrieval tools are built
// on. The execution core never talks to a vector store directly: tool
// authors adapt a Store with NewSearchTool and agents reach it like any
// other tool.
//
// Stores with native metadata and entity filtering serve a Query as-is.
// For backends without native filtering the package post-filters: Expand
// inflates the requested TopK, the store returns the larger ranked slice,
// and FilterTruncate applies the filters in memory before cutting the
// result back to the original TopK. Search bundles the three steps.
package rag

import (
	"context"
	"math"
)

// Defaults used when a Query or ExpansionConfig leaves a knob at zero.
const (
	DefaultTopK     = 8
	DefaultMaxTopK  = 100
	DefaultFactor   = 2.0
	DefaultOffset   = 8
	DefaultPassRate = 0.5
)

type (
	// Query is one similarity search request.
	Query struct {
		// Text is the natural language query to embed and match.
		Text string
		// TopK is how many matches the caller wants. Zero means
		// DefaultTopK.
		TopK int
		// SimilarityThreshold drops matches scoring below it.
		SimilarityThreshold float64
		// MetadataFilter keeps only matches whose metadata carries
		// every listed key with an equal value.
		MetadataFilter map[string]any
		// EntityFilter keeps only matches referencing every listed
		// entity.
		EntityFilter []string
	}

	// Match is one ranked search hit.
	Match struct {
		ID       string
		Content  string
		Score    float64
		Metadata map[string]any
		// Entities names the entities the indexed content references.
		Entities []string
	}

	// Store is implemented by vector search backends. Implementations
	// return matches ranked by descending score and may honor or ignore
	// the query filters; callers that cannot rely on native filtering
	// use Search instead.
	Store interface {
		SimilaritySearch(ctx context.Context, q Query) ([]Match, error)
	}
)

// ExpansionStrategy picks how TopK is inflated before in-memory filtering.
type ExpansionStrategy string

const (
	// ExpandMultiplier scales TopK by Factor.
	ExpandMultiplier ExpansionStrategy = "multiplier"
	// ExpandOffset adds Offset to TopK.
	ExpandOffset ExpansionStrategy = "offset"
	// ExpandPassRate divides TopK by the expected fraction of matches
	// that survive the filters.
	ExpandPassRate ExpansionStrategy = "pass_rate"
)

// ExpansionConfig tunes Expand. The zero value multiplies TopK by
// DefaultFactor and bounds it at DefaultMaxTopK.
type ExpansionConfig struct {
	// Strategy defaults to ExpandMultiplier.
	Strategy ExpansionStrategy
	// Factor scales TopK under ExpandMultiplier. Values at or below 1
	// fall back to DefaultFactor.
	Factor float64
	// Offset is added to TopK under ExpandOffset. Values at or below 0
	// fall back to DefaultOffset.
	Offset int
	// PassRate is the expected filter pass rate under ExpandPassRate,
	// in (0, 1]. Out-of-range values fall back to DefaultPassRate.
	PassRate float64
	// MaxTopK bounds the inflated TopK regardless of strategy. Zero
	// means DefaultMaxTopK. The bound is authoritative: it may shrink
	// the request below the original TopK.
	MaxTopK int
}

// Expand returns a copy of q with TopK inflated per cfg so that in-memory
// filtering still has enough candidates to fill the original TopK.
func Expand(q Query, cfg ExpansionConfig) Query {
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	var inflated int
	switch cfg.Strategy {
	case ExpandOffset:
		offset := cfg.Offset
		if offset <= 0 {
			offset = DefaultOffset
		}
		inflated = topK + offset
	case ExpandPassRate:
		rate := cfg.PassRate
		if rate <= 0 || rate > 1 {
			rate = DefaultPassRate
		}
		inflated = int(math.Ceil(float64(topK) / rate))
	default:
		factor := cfg.Factor
		if factor <= 1 {
			factor = DefaultFactor
		}
		inflated = int(math.Ceil(float64(topK) * factor))
	}

	bound := cfg.MaxTopK
	if bound <= 0 {
		bound = DefaultMaxTopK
	}
	if inflated > bound {
		inflated = bound
	}

	out := q
	out.TopK = inflated
	return out
}

// FilterTruncate applies q's threshold, metadata filter and entity filter in
// memory and truncates the survivors to q's TopK. Matches keep their store
// ranking. Call it with the original query, not the expanded one.
func FilterTruncate(matches []Match, q Query) []Match {
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	out := make([]Match, 0, topK)
	for _, m := range matches {
		if m.Score < q.SimilarityThreshold {
			continue
		}
		if !metadataMatches(m, q.MetadataFilter) {
			continue
		}
		if !mentionsAll(m, q.EntityFilter) {
			continue
		}
		out = append(out, m)
		if len(out) == topK {
			break
		}
	}
	return out
}

// Search runs q against a store without native filtering: the store sees an
// inflated TopK and no filters, then the filters run in memory and the
// result is truncated back to q's TopK.
func Search(ctx context.Context, store Store, q Query, cfg ExpansionConfig) ([]Match, error) {
	expanded := Expand(q, cfg)
	expanded.MetadataFilter = nil
	expanded.EntityFilter = nil
	matches, err := store.SimilaritySearch(ctx, expanded)
	if err != nil {
		return nil, err
	}
	return FilterTruncate(matches, q), nil
}

func metadataMatches(m Match, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := m.Metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func mentionsAll(m Match, entities []string) bool {
	for _, want := range entities {
		found := false
		for _, got := range m.Entities {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
