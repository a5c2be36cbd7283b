package model

import (
	"fmt"
	"sync"
)

// Tier is a symbolic model role used for selection when the caller does not
// pin an exact model name.
type Tier string

const (
	// TierBest selects the most capable registered client.
	TierBest Tier = "best"
	// TierCheapest selects the lowest cost registered client.
	TierCheapest Tier = "cheapest"
	// TierFastest selects the lowest latency registered client.
	TierFastest Tier = "fastest"
)

type (
	// Criteria selects a client from the registry. Name wins when both are
	// set; an empty Criteria resolves to the registry default.
	Criteria struct {
		Name string
		Tier Tier
	}

	// Registry maps model names and tiers to clients. Safe for concurrent
	// use; registration typically happens once at startup.
	Registry struct {
		mu      sync.RWMutex
		byName  map[string]Client
		byTier  map[Tier]string
		defName string
	}
)

// String renders the criteria for error messages and events.
func (c Criteria) String() string {
	switch {
	case c.Name != "":
		return "name=" + c.Name
	case c.Tier != "":
		return "tier=" + string(c.Tier)
	default:
		return "default"
	}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Client),
		byTier: make(map[Tier]string),
	}
}

// Register adds client under name and optionally binds it to tiers. The first
// registered client becomes the default until SetDefault overrides it.
func (r *Registry) Register(name string, client Client, tiers ...Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = client
	for _, t := range tiers {
		r.byTier[t] = name
	}
	if r.defName == "" {
		r.defName = name
	}
}

// SetDefault names the client returned for empty criteria.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defName = name
}

// Lookup resolves criteria to a client. A failed lookup wraps
// ErrNoSuitableModel with the criteria that missed.
func (r *Registry) Lookup(crit Criteria) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name := crit.Name
	if name == "" && crit.Tier != "" {
		name = r.byTier[crit.Tier]
	}
	if name == "" {
		name = r.defName
	}
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuitableModel, crit)
}

// Names returns the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}
