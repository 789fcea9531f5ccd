package provider

import (
	"fmt"
	"sort"
)

// Registry holds the configured providers by name
type Registry struct {
	providers map[string]IdentityProvider
}

func NewRegistry(list ...IdentityProvider) *Registry {
	m := make(map[string]IdentityProvider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}

	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (IdentityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}

	sort.Strings(names)
	return names
}
