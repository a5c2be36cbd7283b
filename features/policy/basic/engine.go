// Package basic provides a lightweight tool policy engine that enforces
// allow/block lists over tool names and groups. It covers the common case
// where a deployment wants to restrict which tools an agent may offer to the
// model without building a bespoke policy service.
package basic

import (
	"context"
	"strings"

	"github.com/telos-ai/telos/tools"
)

// Options configures the policy engine.
type Options struct {
	// AllowGroups restricts tools to the named metadata groups. Empty means
	// no group filter.
	AllowGroups []string
	// BlockGroups excludes tools belonging to any of these groups.
	BlockGroups []string
	// AllowTools explicitly allowlists tool names. Takes precedence over
	// group filters.
	AllowTools []string
	// BlockTools explicitly blocks tool names. Blocks always win.
	BlockTools []string
	// Label annotates gate results; defaults to "basic".
	Label string
}

// Engine filters tool sets by name and group. The zero filter set allows
// everything.
type Engine struct {
	allowGroups map[string]struct{}
	blockGroups map[string]struct{}
	allowTools  map[string]struct{}
	blockTools  map[string]struct{}
	label       string
}

// New builds an Engine from the supplied options.
func New(opts Options) (*Engine, error) {
	label := strings.TrimSpace(opts.Label)
	if label == "" {
		label = "basic"
	}
	return &Engine{
		allowGroups: toSet(opts.AllowGroups),
		blockGroups: toSet(opts.BlockGroups),
		allowTools:  toSet(opts.AllowTools),
		blockTools:  toSet(opts.BlockTools),
		label:       label,
	}, nil
}

// Allowed reports whether a tool with the given name and metadata passes the
// policy.
func (e *Engine) Allowed(name string, meta tools.Metadata) bool {
	if len(e.blockTools) > 0 {
		if _, blocked := e.blockTools[name]; blocked {
			return false
		}
	}
	if len(e.blockGroups) > 0 {
		if _, blocked := e.blockGroups[meta.Group]; blocked {
			return false
		}
	}
	if len(e.allowTools) > 0 {
		_, ok := e.allowTools[name]
		return ok
	}
	if len(e.allowGroups) > 0 {
		_, ok := e.allowGroups[meta.Group]
		return ok
	}
	return true
}

// Filter returns the tools that pass the policy, preserving order and
// dropping duplicates by name. Apply it to a tool set before handing it to a
// tool loop or an interaction.
func (e *Engine) Filter(ts []tools.Tool) []tools.Tool {
	filtered := make([]tools.Tool, 0, len(ts))
	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		name := t.Definition().Name
		if _, dup := seen[name]; dup {
			continue
		}
		if !e.Allowed(name, t.Metadata()) {
			continue
		}
		filtered = append(filtered, t)
		seen[name] = struct{}{}
	}
	return filtered
}

// Gate wraps a tool so blocked calls return an error result instead of
// executing. Offer-time filtering with Filter is the primary defense; Gate
// covers tool sets assembled outside the engine's reach.
func (e *Engine) Gate(t tools.Tool) tools.Tool {
	return &gatedTool{engine: e, inner: t}
}

type gatedTool struct {
	engine *Engine
	inner  tools.Tool
}

func (g *gatedTool) Definition() tools.Definition { return g.inner.Definition() }

func (g *gatedTool) Metadata() tools.Metadata { return g.inner.Metadata() }

func (g *gatedTool) Call(ctx context.Context, input string) (tools.Result, error) {
	name := g.inner.Definition().Name
	if !g.engine.Allowed(name, g.inner.Metadata()) {
		return tools.Errorf("tool %q blocked by policy %s", name, g.engine.label), nil
	}
	return g.inner.Call(ctx, input)
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
