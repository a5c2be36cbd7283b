package tools

import "sort"

type (
	// Group is a named bundle of tools published together, typically one
	// backing service or capability. Group metadata is merged into each
	// member's metadata by the enriching decorator.
	Group struct {
		// Name identifies the group in interaction requests.
		Name string
		// Description documents the capability the group provides.
		Description string
		// Extra holds attributes shared by every member tool.
		Extra map[string]string
		// Tools are the member tools.
		Tools []Tool
	}

	// GroupResolver resolves group references named by an interaction into
	// concrete tool groups. Implementations decide what a reference means:
	// a static map, a remote registry, a capability matcher.
	GroupResolver interface {
		// Resolve returns the group for ref, reporting whether it
		// exists.
		Resolve(ref string) (*Group, bool)
	}

	staticGroups map[string]*Group
)

// StaticGroups builds a GroupResolver over a fixed set of groups keyed by
// name.
func StaticGroups(groups ...*Group) GroupResolver {
	m := make(staticGroups, len(groups))
	for _, g := range groups {
		m[g.Name] = g
	}
	return m
}

// Resolve implements GroupResolver.
func (m staticGroups) Resolve(ref string) (*Group, bool) {
	g, ok := m[ref]
	return g, ok
}

// Names returns the member tool names in sorted order. Useful for logging
// and event payloads.
func (g *Group) Names() []string {
	names := make([]string, len(g.Tools))
	for i, t := range g.Tools {
		names[i] = t.Definition().Name
	}
	sort.Strings(names)
	return names
}
