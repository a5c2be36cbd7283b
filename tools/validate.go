package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var schemaPrinter = message.NewPrinter(language.English)

// ValidateInput wraps t so every call checks the payload against the tool's
// declared input schema before the tool runs. A failing payload becomes an
// error Result the model can read; the inner tool never sees it. The schema
// is compiled once here, so a schema that does not compile is an authoring
// bug reported immediately.
func ValidateInput(t Tool) (Tool, error) {
	def := t.Definition()
	var doc any
	if err := json.Unmarshal(def.InputSchema, &doc); err != nil {
		return nil, fmt.Errorf("tools: tool %q input schema: %w", def.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("input.json", doc); err != nil {
		return nil, fmt.Errorf("tools: tool %q input schema: %w", def.Name, err)
	}
	schema, err := c.Compile("input.json")
	if err != nil {
		return nil, fmt.Errorf("tools: tool %q input schema: %w", def.Name, err)
	}
	return &validatingTool{tool: t, schema: schema}, nil
}

type validatingTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

func (v *validatingTool) Definition() Definition { return v.tool.Definition() }
func (v *validatingTool) Metadata() Metadata     { return v.tool.Metadata() }

func (v *validatingTool) Call(ctx context.Context, input string) (Result, error) {
	if input == "" {
		input = "{}"
	}
	var payload any
	if err := json.Unmarshal([]byte(input), &payload); err != nil {
		return Errorf("invalid input for tool %q: %v", v.tool.Definition().Name, err), nil
	}
	if err := v.schema.Validate(payload); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Errorf("invalid input for tool %q:\n%s",
				v.tool.Definition().Name, strings.Join(schemaViolations(ve), "\n")), nil
		}
		return Errorf("invalid input for tool %q: %v", v.tool.Definition().Name, err), nil
	}
	return v.tool.Call(ctx, input)
}

// schemaViolations walks the cause tree and renders one line per leaf.
func schemaViolations(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return []string{fmt.Sprintf("- at '%s': %s", loc, ve.ErrorKind.LocalizedString(schemaPrinter))}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, schemaViolations(cause)...)
	}
	return out
}
