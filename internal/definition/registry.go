package definition

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Registry is the in-memory notification definition catalog. Definitions are
// immutable once registered.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]domain.Definition
	order []string
}

func NewRegistry(defs ...domain.Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]domain.Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(d domain.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[d.Name]; exists {
		return fmt.Errorf("%w: definition %q already registered", domain.ErrConflict, d.Name)
	}
	d.Providers = slices.Clone(d.Providers)
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// GetOrNull returns the definition registered under name, or nil.
func (r *Registry) GetOrNull(name string) *domain.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[name]
	if !ok {
		return nil
	}
	d.Providers = slices.Clone(d.Providers)
	return &d
}

// List returns all definitions in registration order.
func (r *Registry) List() []domain.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Definition, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		d.Providers = slices.Clone(d.Providers)
		out = append(out, d)
	}
	return out
}

// Groups returns definitions keyed by group name. Ungrouped definitions are
// collected under the empty key.
func (r *Registry) Groups() map[string][]domain.Definition {
	groups := make(map[string][]domain.Definition)
	for _, d := range r.List() {
		groups[d.Group] = append(groups[d.Group], d)
	}
	return groups
}
