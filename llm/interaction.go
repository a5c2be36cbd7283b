package llm

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/telos-ai/telos/model"
	"github.com/telos-ai/telos/tools"
)

type (
	// Options tunes one interaction.
	Options struct {
		// Criteria selects the model: by name, by tier, or the
		// registry default when zero.
		Criteria model.Criteria
		// Temperature is optional; nil means provider default.
		Temperature *float64
		// MaxTokens caps one generation, zero means provider default.
		MaxTokens int
		// Candidates asks for alternative generations; the engine
		// folds or picks, it never returns more than one answer.
		Candidates int
		// Timeout bounds one model attempt, zero falls back to the
		// Operations default.
		Timeout time.Duration
	}

	// Interaction is everything one structured-output call needs beyond
	// the conversation itself. The ID correlates the request event, the
	// response event and every retry in between.
	Interaction struct {
		ID      string
		Options Options
		// Tools are standalone tools offered to the model.
		Tools []tools.Tool
		// Groups name tool groups resolved through the configured
		// GroupResolver.
		Groups []string
		// Schema declares constraints on the output document. When set
		// together with Validate, the model is told the exact shape up
		// front and the parsed answer is validated against it.
		Schema json.RawMessage
		// Validate enables schema validation with a single repair
		// retry.
		Validate bool
	}
)

// NewInteraction returns an Interaction with a fresh correlation ID.
func NewInteraction(opts Options) Interaction {
	return Interaction{ID: uuid.NewString(), Options: opts}
}
