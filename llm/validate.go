package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var violationPrinter = message.NewPrinter(language.English)

// schemaPrompt builds the instruction appended before the first attempt of a
// validating interaction so the model knows the exact shape up front.
func schemaPrompt(schema json.RawMessage) string {
	return "Respond with a single JSON document and nothing else. " +
		"The document must validate against this JSON Schema:\n" + string(schema)
}

// violationsReport builds the repair instruction sent on the single
// validation retry.
func violationsReport(violations []string) string {
	var b strings.Builder
	b.WriteString("The previous response failed validation:\n")
	for _, v := range violations {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteString("Respond again with a corrected JSON document only.")
	return b.String()
}

// validateAgainst validates the raw JSON document against the schema and
// returns the flattened violation messages. A schema that does not compile is
// a caller bug and returns an error.
func validateAgainst(schema json.RawMessage, raw []byte) ([]string, error) {
	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return nil, fmt.Errorf("llm: unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("interaction.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("llm: add schema resource: %w", err)
	}
	compiled, err := c.Compile("interaction.json")
	if err != nil {
		return nil, fmt.Errorf("llm: compile schema: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("llm: reparse candidate: %w", err)
	}
	verr := compiled.Validate(payload)
	if verr == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(verr, &ve) {
		return flattenViolations(ve), nil
	}
	return []string{verr.Error()}, nil
}

// flattenViolations walks the cause tree and renders one message per leaf.
func flattenViolations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("at '%s': %s", loc, ve.ErrorKind.LocalizedString(violationPrinter))}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenViolations(cause)...)
	}
	return out
}
