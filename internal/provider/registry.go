package provider

import (
	"fmt"

	"github.com/timmy/waifeed/internal/domain"
)

// Registry resolves adapters by provider.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

// NewRegistry indexes the given adapters. A later adapter for the same provider wins.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p domain.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %q", domain.ErrUnknownProvider, p)
	}
	return a, nil
}
