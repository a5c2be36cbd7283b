package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telos-ai/telos/tools"
)

// ToolsetOptions configures how discovered MCP tools map onto engine tools.
type ToolsetOptions struct {
	// Group tags every tool in the set, letting policy engines and agent
	// configs select the whole server at once.
	Group string
	// Prefix is prepended to every tool name to avoid collisions between
	// servers exposing identically named tools.
	Prefix string
	// Tools overrides discovery. When nil the caller must implement Lister.
	Tools []ToolInfo
	// ValidateInputs checks every payload against the server's declared
	// input schema before it crosses the wire. A schema that does not
	// compile fails the whole set.
	ValidateInputs bool
}

// Toolset exposes the tools of an MCP server as engine tools. Discovery runs
// once; the returned tools route calls through the caller for their lifetime.
func Toolset(ctx context.Context, caller Caller, opts ToolsetOptions) ([]tools.Tool, error) {
	if caller == nil {
		return nil, errors.New("caller is required")
	}
	infos := opts.Tools
	if infos == nil {
		lister, ok := caller.(Lister)
		if !ok {
			return nil, errors.New("caller does not support tool discovery; provide ToolsetOptions.Tools")
		}
		var err error
		infos, err = lister.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
	}
	set := make([]tools.Tool, 0, len(infos))
	for _, info := range infos {
		if info.Name == "" {
			continue
		}
		schema := info.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		var t tools.Tool = &remoteTool{
			caller: caller,
			remote: info.Name,
			def: tools.Definition{
				Name:        opts.Prefix + info.Name,
				Description: info.Description,
				InputSchema: schema,
			},
			meta: tools.Metadata{Group: opts.Group},
		}
		if opts.ValidateInputs {
			var err error
			if t, err = tools.ValidateInput(t); err != nil {
				return nil, fmt.Errorf("mcp tool %q: %w", info.Name, err)
			}
		}
		set = append(set, t)
	}
	return set, nil
}

// remoteTool proxies a single MCP tool. The remote name may differ from the
// exposed one when a prefix is set.
type remoteTool struct {
	caller Caller
	remote string
	def    tools.Definition
	meta   tools.Metadata
}

func (t *remoteTool) Definition() tools.Definition { return t.def }

func (t *remoteTool) Metadata() tools.Metadata { return t.meta }

func (t *remoteTool) Call(ctx context.Context, input string) (tools.Result, error) {
	payload := json.RawMessage(input)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	resp, err := t.caller.CallTool(ctx, CallRequest{Tool: t.remote, Payload: payload})
	if err != nil {
		return tools.Result{}, err
	}
	text := resultText(resp.Result)
	if resp.IsError {
		return tools.Errorf("%s", text), nil
	}
	if len(resp.Structured) > 0 {
		return tools.WithArtifact(text, resp.Structured), nil
	}
	return tools.Text(text), nil
}

// resultText renders the normalized result for the model. JSON strings are
// unquoted so the model sees plain prose.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
