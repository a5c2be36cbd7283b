package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// fakeServer implements Caller and Lister in memory.
type fakeServer struct {
	infos   []ToolInfo
	listErr error
	call    func(ctx context.Context, req CallRequest) (CallResponse, error)
}

func (f *fakeServer) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	return f.call(ctx, req)
}

func (f *fakeServer) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return f.infos, f.listErr
}

func TestToolsetDiscoversTools(t *testing.T) {
	srv := &fakeServer{
		infos: []ToolInfo{
			{Name: "bake", Description: "bakes things", InputSchema: json.RawMessage(`{"type":"object","properties":{"dish":{"type":"string"}}}`)},
			{Name: "stir", Description: "stirs the pot"},
			{Name: ""},
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{Group: "kitchen", Prefix: "kitchen_"})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2 (unnamed tools dropped)", len(set))
	}
	def := set[0].Definition()
	if def.Name != "kitchen_bake" {
		t.Errorf("name = %q, want kitchen_bake", def.Name)
	}
	if def.Description != "bakes things" {
		t.Errorf("description = %q", def.Description)
	}
	if !strings.Contains(string(def.InputSchema), `"dish"`) {
		t.Errorf("schema = %s, want the advertised schema", def.InputSchema)
	}
	if got := set[0].Metadata().Group; got != "kitchen" {
		t.Errorf("group = %q, want kitchen", got)
	}
	if got := string(set[1].Definition().InputSchema); got != `{"type":"object","properties":{}}` {
		t.Errorf("default schema = %s", got)
	}
}

func TestToolsetCallRoundTrip(t *testing.T) {
	var seen CallRequest
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "bake"}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			seen = req
			return CallResponse{Result: json.RawMessage(`"cake is ready"`)}, nil
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{Prefix: "kitchen_"})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	res, err := set[0].Call(context.Background(), `{"dish":"cake"}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if seen.Tool != "bake" {
		t.Errorf("remote tool = %q, want bake (prefix stripped)", seen.Tool)
	}
	if string(seen.Payload) != `{"dish":"cake"}` {
		t.Errorf("payload = %s", seen.Payload)
	}
	if res.Content() != "cake is ready" {
		t.Errorf("content = %q, want unquoted text", res.Content())
	}
	if res.IsError() {
		t.Error("IsError = true, want false")
	}
}

func TestToolsetEmptyInputSendsEmptyObject(t *testing.T) {
	var seen CallRequest
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "status"}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			seen = req
			return CallResponse{Result: json.RawMessage(`"ok"`)}, nil
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	if _, err := set[0].Call(context.Background(), ""); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(seen.Payload) != `{}` {
		t.Errorf("payload = %s, want {}", seen.Payload)
	}
}

func TestToolsetStructuredResultBecomesArtifact(t *testing.T) {
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "read"}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			return CallResponse{
				Result:     json.RawMessage(`{"temperature":180}`),
				Structured: json.RawMessage(`{"temperature":180}`),
			}, nil
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	res, err := set[0].Call(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	art, ok := res.Artifact()
	if !ok {
		t.Fatal("artifact missing")
	}
	raw, ok := art.(json.RawMessage)
	if !ok {
		t.Fatalf("artifact type = %T, want json.RawMessage", art)
	}
	if string(raw) != `{"temperature":180}` {
		t.Errorf("artifact = %s", raw)
	}
}

func TestToolsetErrorResultMapsToErrorResult(t *testing.T) {
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "bake"}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			return CallResponse{Result: json.RawMessage(`"the oven is on fire"`), IsError: true}, nil
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	res, err := set[0].Call(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.IsError() {
		t.Error("IsError = false, want true")
	}
	if res.Content() != "the oven is on fire" {
		t.Errorf("content = %q", res.Content())
	}
}

func TestToolsetCallerErrorPropagates(t *testing.T) {
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "bake"}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			return CallResponse{}, errors.New("server gone")
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	if _, err := set[0].Call(context.Background(), `{}`); err == nil {
		t.Fatal("Call succeeded, want transport error")
	}
}

func TestToolsetExplicitInfosSkipDiscovery(t *testing.T) {
	caller := CallerFunc(func(ctx context.Context, req CallRequest) (CallResponse, error) {
		return CallResponse{Result: json.RawMessage(`"ok"`)}, nil
	})
	set, err := Toolset(context.Background(), caller, ToolsetOptions{
		Tools: []ToolInfo{{Name: "ping"}},
	})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}
	if len(set) != 1 || set[0].Definition().Name != "ping" {
		t.Fatalf("set = %+v, want single ping tool", set)
	}
}

func TestToolsetRequiresLister(t *testing.T) {
	caller := CallerFunc(func(ctx context.Context, req CallRequest) (CallResponse, error) {
		return CallResponse{}, nil
	})
	_, err := Toolset(context.Background(), caller, ToolsetOptions{})
	if err == nil {
		t.Fatal("Toolset succeeded without discovery support")
	}
	if !strings.Contains(err.Error(), "discovery") {
		t.Errorf("error = %v, want discovery hint", err)
	}
}

func TestToolsetListError(t *testing.T) {
	srv := &fakeServer{listErr: errors.New("list broke")}
	_, err := Toolset(context.Background(), srv, ToolsetOptions{})
	if err == nil {
		t.Fatal("Toolset succeeded, want list error")
	}
	if !strings.Contains(err.Error(), "list broke") {
		t.Errorf("error = %v", err)
	}
}

func TestToolsetValidateInputsGatesCalls(t *testing.T) {
	called := false
	srv := &fakeServer{
		infos: []ToolInfo{{
			Name:        "bake",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"dish":{"type":"string"}},"required":["dish"]}`),
		}},
		call: func(ctx context.Context, req CallRequest) (CallResponse, error) {
			called = true
			return CallResponse{Result: json.RawMessage(`"done"`)}, nil
		},
	}
	set, err := Toolset(context.Background(), srv, ToolsetOptions{ValidateInputs: true})
	if err != nil {
		t.Fatalf("Toolset: %v", err)
	}

	res, err := set[0].Call(context.Background(), `{"oven": 220}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !res.IsError() || !strings.Contains(res.Content(), "dish") {
		t.Fatalf("result = %+v, want schema violation", res)
	}
	if called {
		t.Fatal("invalid payload must not reach the server")
	}

	res, err = set[0].Call(context.Background(), `{"dish": "pie"}`)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.IsError() || res.Content() != "done" {
		t.Fatalf("result = %+v", res)
	}
	if !called {
		t.Fatal("valid payload must reach the server")
	}
}

func TestToolsetValidateInputsRejectsBadSchema(t *testing.T) {
	srv := &fakeServer{
		infos: []ToolInfo{{Name: "bake", InputSchema: json.RawMessage(`{"type": 42}`)}},
	}
	_, err := Toolset(context.Background(), srv, ToolsetOptions{ValidateInputs: true})
	if err == nil {
		t.Fatal("Toolset accepted a schema that does not compile")
	}
	if !strings.Contains(err.Error(), `"bake"`) {
		t.Errorf("error = %v, want tool name", err)
	}
}
