package autonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/telos-ai/telos/agent"
	"github.com/telos-ai/telos/llm"
	"github.com/telos-ai/telos/model"
)

// LLMRanker scores goals with a structured-output interaction. The scores
// schema is validated, so a model that answers out of range gets the single
// repair retry before the ranking fails.
type LLMRanker struct {
	// Ops executes the scoring interaction; required.
	Ops *llm.Operations
	// Options tune the interaction, typically the model criteria.
	Options llm.Options
}

type (
	goalScore struct {
		Goal       string  `json:"goal"`
		Confidence float64 `json:"confidence"`
	}
	goalScores struct {
		Scores []goalScore `json:"scores"`
	}
)

var scoresSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"scores": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"goal": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"required": ["goal", "confidence"]
			}
		}
	},
	"required": ["scores"]
}`)

// Rank implements Ranker.
func (r *LLMRanker) Rank(ctx context.Context, intent string, goals []*agent.Goal) ([]Ranking, error) {
	if r.Ops == nil {
		return nil, errors.New("autonomy: llm ranker needs operations")
	}
	if len(goals) == 0 {
		return nil, nil
	}

	var list strings.Builder
	for _, g := range goals {
		if g.Description != "" {
			fmt.Fprintf(&list, "- %s: %s\n", g.Name, g.Description)
			continue
		}
		fmt.Fprintf(&list, "- %s\n", g.Name)
	}
	msgs := []model.Message{
		model.SystemMessage("You match a user's intent to the goals an agent can pursue." +
			" Score every goal between 0 and 1 for how well it serves the intent;" +
			" score goals that do not serve it near 0. Return one score per goal."),
		model.UserMessage(fmt.Sprintf("Intent:\n%s\n\nGoals:\n%s", intent, list.String())),
	}

	inter := llm.NewInteraction(r.Options)
	inter.Schema = scoresSchema
	inter.Validate = true
	out, err := llm.CreateObject[goalScores](ctx, r.Ops, msgs, inter, nil)
	if err != nil {
		return nil, err
	}

	rankings := make([]Ranking, 0, len(out.Scores))
	for _, s := range out.Scores {
		rankings = append(rankings, Ranking{Goal: s.Goal, Confidence: s.Confidence})
	}
	return rankings, nil
}
