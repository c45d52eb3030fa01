package query

import (
	"fmt"
	"sort"
)

// Scope is a named, reusable set of conditions, ordering and limit
type Scope struct {
	Name       string
	Conditions []*Condition
	OrderBy    []OrderClause
	Limit      int
}

// ScopeRegistry manages the scopes of one entity type
type ScopeRegistry struct {
	scopes map[string]*Scope
}

// NewScopeRegistry creates a new scope registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{
		scopes: make(map[string]*Scope),
	}
}

// Register registers a scope, replacing one with the same name
func (sr *ScopeRegistry) Register(scope *Scope) {
	sr.scopes[scope.Name] = scope
}

// Get retrieves a scope by name
func (sr *ScopeRegistry) Get(name string) (*Scope, error) {
	scope, ok := sr.scopes[name]
	if !ok {
		return nil, fmt.Errorf("unknown scope: %s", name)
	}
	return scope, nil
}

// Has checks if a scope exists
func (sr *ScopeRegistry) Has(name string) bool {
	_, ok := sr.scopes[name]
	return ok
}

// List returns all registered scope names in sorted order
func (sr *ScopeRegistry) List() []string {
	names := make([]string, 0, len(sr.scopes))
	for name := range sr.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope applies the named scopes to b
func (b *Builder) Scope(registry *ScopeRegistry, names ...string) *Builder {
	for _, name := range names {
		scope, err := registry.Get(name)
		if err != nil {
			b.fail(err)
			return b
		}
		b.Apply(scope)
	}
	return b
}
