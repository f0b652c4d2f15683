package provider

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Registry keeps providers in registration order and resolves them by name
// for the dispatcher and the retry worker.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	byName    map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(p Provider) error {
	if p == nil || strings.TrimSpace(p.Name()) == "" {
		return fmt.Errorf("%w: provider name is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("%w: provider %q already registered", domain.ErrConflict, p.Name())
	}
	r.providers = append(r.providers, p)
	r.byName[p.Name()] = p
	return nil
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	return p, ok
}

// Reversed returns providers last-registered first.
func (r *Registry) Reversed() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Clone(r.providers)
	slices.Reverse(out)
	return out
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Select returns the reversed chain filtered by the event override when set,
// otherwise by the definition allow-list.
func (r *Registry) Select(useProviders []string, def *domain.Definition) []Provider {
	chain := r.Reversed()

	var keep func(name string) bool
	switch {
	case len(useProviders) > 0:
		keep = func(name string) bool { return slices.Contains(useProviders, name) }
	case def != nil && len(def.Providers) > 0:
		keep = def.AllowsProvider
	default:
		return chain
	}

	out := chain[:0]
	for _, p := range chain {
		if keep(p.Name()) {
			out = append(out, p)
		}
	}
	return out
}
