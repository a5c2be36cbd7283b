package agent

import (
	"github.com/telos-ai/telos/blackboard"
)

// ResolveInputs resolves every declared input of act against b. Named
// bindings resolve their exact entry; unnamed bindings resolve the first
// compatible value in insertion order. The returned map is keyed by binding
// name, or by type for unnamed bindings. Missing lists the non-optional
// bindings that could not be resolved; absent optional bindings are skipped
// silently.
func ResolveInputs(act *Action, b *blackboard.Blackboard) (resolved map[string]any, missing []Binding) {
	resolved = make(map[string]any, len(act.Inputs))
	for _, in := range act.Inputs {
		v, ok := resolveOne(in, b)
		if !ok {
			if !in.Optional {
				missing = append(missing, in)
			}
			continue
		}
		resolved[in.key()] = v
	}
	return resolved, missing
}

// Ready reports whether act can dispatch against b: every non-optional input
// resolves and the precondition, when declared, holds.
func (act *Action) Ready(b *blackboard.Blackboard) bool {
	for _, in := range act.Inputs {
		if in.Optional {
			continue
		}
		if _, ok := resolveOne(in, b); !ok {
			return false
		}
	}
	return act.Pre == nil || act.Pre(b)
}

// ApplyOutputs interprets the executor result and writes it onto b. A
// []Output binds each entry under its own name; any other non-nil value binds
// under the first declared output name, falling back to the default binding.
// The returned slice lists the blackboard names written, in order.
func ApplyOutputs(act *Action, b *blackboard.Blackboard, result any) []string {
	if result == nil {
		return nil
	}
	if outs, ok := result.([]Output); ok {
		names := make([]string, 0, len(outs))
		for _, out := range outs {
			name := out.Name
			if name == "" {
				name = blackboard.Default
			}
			b.Bind(name, out.Value)
			names = append(names, name)
		}
		return names
	}
	name := blackboard.Default
	if len(act.Outputs) > 0 && act.Outputs[0].Name != "" {
		name = act.Outputs[0].Name
	}
	b.Bind(name, result)
	return []string{name}
}

// key is the resolved-map key for the binding.
func (b Binding) key() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Type
}

func resolveOne(in Binding, b *blackboard.Blackboard) (any, bool) {
	if in.Name != "" {
		return b.GetAs(in.Name, in.Type)
	}
	return b.FirstOfType(in.Type)
}
