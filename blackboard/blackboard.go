// Package blackboard implements the typed workspace an agent process reads
// and writes while it runs. Values are keyed by binding name and carry the
// fully qualified name of their runtime type, captured at bind time. The
// workspace is append oriented: rebinding a name replaces the value but keeps
// the name's original position in insertion order.
//
// Values are shared-immutable. Holders may read them freely; none may mutate
// them. A newly bound value may refer to earlier ones by binding name, never
// through mutable pointers back into the board.
//
// Lookups come in two flavors with different ordering contracts: FirstOf
// scans insertion order and returns the first compatible value (action input
// resolution), LastOf returns the most recently written compatible value
// (goal satisfaction checks).
//
//	b := blackboard.New()
//	b.Bind(blackboard.Default, UserInput{Content: "Kermit"})
//	in, ok := blackboard.First[UserInput](b)
package blackboard

import (
	"reflect"
	"sync"
)

// Default is the binding name used for single input or output entry points.
const Default = "it"

type (
	// Blackboard is the workspace owned by a single agent process. All
	// methods are safe for concurrent use; the owning process is single
	// threaded but listeners and persistence adapters may snapshot while
	// the process runs.
	Blackboard struct {
		mu      sync.RWMutex
		entries map[string]*entry
		order   []string
		types   map[string]reflect.Type
		writes  uint64
	}

	// Binding is one (name, value) pair together with the type name
	// captured when the value was bound.
	Binding struct {
		Name     string
		TypeName string
		Value    any
	}

	entry struct {
		value    any
		typ      reflect.Type
		typeName string
		seq      uint64
	}
)

// New returns an empty blackboard.
func New() *Blackboard {
	return &Blackboard{
		entries: make(map[string]*entry),
		types:   make(map[string]reflect.Type),
	}
}

// Bind records value under name, capturing the value's runtime type. A
// previous value under the same name is replaced; the name keeps its original
// insertion position.
func (b *Blackboard) Bind(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	typ := reflect.TypeOf(value)
	b.writes++
	e, ok := b.entries[name]
	if !ok {
		e = &entry{}
		b.entries[name] = e
		b.order = append(b.order, name)
	}
	e.value = value
	e.typ = typ
	e.typeName = TypeName(typ)
	e.seq = b.writes
	if typ != nil {
		b.types[e.typeName] = typ
	}
}

// BindDefault records value under the Default name.
func (b *Blackboard) BindDefault(value any) {
	b.Bind(Default, value)
}

// Get returns the value bound under name.
func (b *Blackboard) Get(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetAs returns the value bound under name only when its captured type equals
// typeName or is assignable to it.
func (b *Blackboard) GetAs(name, typeName string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[name]
	if !ok || !b.compatibleName(e, typeName) {
		return nil, false
	}
	return e.value, true
}

// FirstOfType scans bindings in insertion order and returns the first value
// compatible with typeName.
func (b *Blackboard) FirstOfType(typeName string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, name := range b.order {
		if e := b.entries[name]; b.compatibleName(e, typeName) {
			return e.value, true
		}
	}
	return nil, false
}

// LastOfType returns the most recently written value compatible with
// typeName.
func (b *Blackboard) LastOfType(typeName string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var (
		found *entry
		best  uint64
	)
	for _, e := range b.entries {
		if b.compatibleName(e, typeName) && e.seq > best {
			found, best = e, e.seq
		}
	}
	if found == nil {
		return nil, false
	}
	return found.value, true
}

// FirstOf scans bindings in insertion order and returns the name and value of
// the first binding assignable to typ.
func (b *Blackboard) FirstOf(typ reflect.Type) (string, any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, name := range b.order {
		if e := b.entries[name]; compatible(e.typ, typ) {
			return name, e.value, true
		}
	}
	return "", nil, false
}

// LastOf returns the most recently written value assignable to typ.
func (b *Blackboard) LastOf(typ reflect.Type) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var (
		found *entry
		best  uint64
	)
	for _, e := range b.entries {
		if compatible(e.typ, typ) && e.seq > best {
			found, best = e, e.seq
		}
	}
	if found == nil {
		return nil, false
	}
	return found.value, true
}

// HasType reports whether any binding is assignable to typ.
func (b *Blackboard) HasType(typ reflect.Type) bool {
	_, ok := b.LastOf(typ)
	return ok
}

// Objects returns a snapshot of all values in insertion order.
func (b *Blackboard) Objects() []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]any, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.entries[name].value)
	}
	return out
}

// Snapshot returns all bindings in insertion order, suitable for persistence
// adapters and process results.
func (b *Blackboard) Snapshot() []Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Binding, 0, len(b.order))
	for _, name := range b.order {
		e := b.entries[name]
		out = append(out, Binding{Name: name, TypeName: e.typeName, Value: e.value})
	}
	return out
}

// Names returns the binding names in insertion order.
func (b *Blackboard) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of bindings.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// compatibleName matches an entry against a type name. When the name refers
// to a type the board has seen, assignability decides; otherwise the captured
// name must match exactly.
func (b *Blackboard) compatibleName(e *entry, typeName string) bool {
	if e.typeName == typeName {
		return true
	}
	if target, ok := b.types[typeName]; ok {
		return compatible(e.typ, target)
	}
	return false
}

func compatible(from, to reflect.Type) bool {
	if from == nil || to == nil {
		return false
	}
	return from.AssignableTo(to)
}

// TypeName returns the fully qualified name of t, e.g.
// "github.com/telos-ai/telos/agent.UserInput". Pointer types are prefixed
// with "*"; unnamed and builtin types fall back to their Go syntax.
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		return "*" + TypeName(t.Elem())
	}
	if pp := t.PkgPath(); pp != "" {
		return pp + "." + t.Name()
	}
	return t.String()
}

// TypeNameOf returns the fully qualified type name of v.
func TypeNameOf(v any) string {
	return TypeName(reflect.TypeOf(v))
}

// First returns the first binding assignable to T in insertion order.
func First[T any](b *Blackboard) (T, bool) {
	_, v, ok := b.FirstOf(reflect.TypeFor[T]())
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Last returns the most recently written binding assignable to T.
func Last[T any](b *Blackboard) (T, bool) {
	v, ok := b.LastOf(reflect.TypeFor[T]())
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Named returns the value bound under name when it is assignable to T.
func Named[T any](b *Blackboard, name string) (T, bool) {
	var zero T
	v, ok := b.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
