package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

var bakeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"dish": {"type": "string"}},
	"required": ["dish"]
}`)

func TestValidateInputPassesValidPayload(t *testing.T) {
	var got string
	inner := Func("bake", "bakes a dish", bakeSchema, func(_ context.Context, input string) (Result, error) {
		got = input
		return Text("baked"), nil
	})
	v, err := ValidateInput(inner)
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}

	r, err := v.Call(context.Background(), `{"dish": "bread"}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if r.IsError() || r.Content() != "baked" {
		t.Fatalf("result = %+v", r)
	}
	if got != `{"dish": "bread"}` {
		t.Fatalf("inner input = %q", got)
	}
}

func TestValidateInputRejectsViolations(t *testing.T) {
	called := false
	inner := Func("bake", "bakes a dish", bakeSchema, func(context.Context, string) (Result, error) {
		called = true
		return Text("baked"), nil
	})
	v, err := ValidateInput(inner)
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}

	r, err := v.Call(context.Background(), `{"oven": 220}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !r.IsError() {
		t.Fatal("expected error result")
	}
	if !strings.Contains(r.Content(), `invalid input for tool "bake"`) || !strings.Contains(r.Content(), "dish") {
		t.Fatalf("content = %q", r.Content())
	}
	if called {
		t.Fatal("inner tool must not run on invalid input")
	}
}

func TestValidateInputRejectsMalformedJSON(t *testing.T) {
	called := false
	inner := Func("bake", "bakes a dish", bakeSchema, func(context.Context, string) (Result, error) {
		called = true
		return Text("baked"), nil
	})
	v, err := ValidateInput(inner)
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}

	r, err := v.Call(context.Background(), `{not json`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !r.IsError() || !strings.Contains(r.Content(), `invalid input for tool "bake"`) {
		t.Fatalf("result = %+v", r)
	}
	if called {
		t.Fatal("inner tool must not run on malformed input")
	}
}

func TestValidateInputEmptyPayloadChecksEmptyObject(t *testing.T) {
	var got string
	inner := Func("ping", "pings", nil, func(_ context.Context, input string) (Result, error) {
		got = input
		return Text("pong"), nil
	})
	v, err := ValidateInput(inner)
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}

	r, err := v.Call(context.Background(), "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if r.IsError() || got != "{}" {
		t.Fatalf("result = %+v, inner input = %q", r, got)
	}

	// The same empty payload fails a schema with required properties.
	strict, err := ValidateInput(Func("bake", "bakes", bakeSchema, func(context.Context, string) (Result, error) {
		return Text("baked"), nil
	}))
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}
	r, err = strict.Call(context.Background(), "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !r.IsError() {
		t.Fatal("expected error result for empty payload against required schema")
	}
}

func TestValidateInputBadSchemaFailsConstruction(t *testing.T) {
	inner := Func("bake", "bakes", json.RawMessage(`{"type": 42}`), func(context.Context, string) (Result, error) {
		return Text("baked"), nil
	})
	if _, err := ValidateInput(inner); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestValidateInputPreservesIdentity(t *testing.T) {
	inner := Func("bake", "bakes a dish", bakeSchema, func(context.Context, string) (Result, error) {
		return Text("baked"), nil
	})
	v, err := ValidateInput(inner)
	if err != nil {
		t.Fatalf("ValidateInput: %v", err)
	}
	if v.Definition().Name != "bake" || v.Definition().Description != "bakes a dish" {
		t.Fatalf("definition = %+v", v.Definition())
	}
}
