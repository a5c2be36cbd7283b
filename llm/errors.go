package llm

import (
	"fmt"
	"strings"
)

// InvalidStructuredOutputError reports that the model's output still violated
// the interaction schema after the single repair retry.
type InvalidStructuredOutputError struct {
	// Violations are the schema violations of the final candidate.
	Violations []string
	// Candidate is the final JSON document the model produced.
	Candidate string
}

// Error implements the error interface.
func (e *InvalidStructuredOutputError) Error() string {
	return fmt.Sprintf("llm: structured output failed validation after retry: %s", strings.Join(e.Violations, "; "))
}
