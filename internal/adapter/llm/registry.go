package llm

import (
	"fmt"
	"sort"
	"sync"

	"relator-ai/internal/domain"
)

// Registry indexes the configured providers by name so the double-check
// pass and the failover chain can be wired to specific entries from
// config.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register indexes provider under its Name(). Names are unique; a second
// registration under the same name is a configuration error.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, dup := r.providers[name]; dup {
		return fmt.Errorf("duplicate provider name %q in configuration", name)
	}
	r.providers[name] = provider
	return nil
}

// Get looks up a provider by its configured name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return provider, nil
}

// List returns the registered names sorted, so the failover chain built
// from it is stable across runs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
