package module

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kingrea/intel-lattice/internal/profile"
)

// Factory constructs a module with the provided environment and configuration.
type Factory func(Env, Config) (Module, error)

// Prepare runs before a module is constructed. It may derive extra
// configuration from the profile snapshot, or return an error built with Skip
// when the module has nothing to work on.
type Prepare func(env Env, snapshot profile.Profile, cfg Config) (Config, error)

// Spec is the registry entry for one module id.
type Spec struct {
	ID       string
	Factory  Factory
	Prepare  Prepare
	Defaults Config
}

// Registry maintains known module specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: map[string]Spec{}}
}

// Register installs a module spec. Returns an error if the ID already exists.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if spec.Factory == nil {
		return fmt.Errorf("module: factory is required for %s", spec.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.ID]; exists {
		return fmt.Errorf("module: %s already registered", spec.ID)
	}
	spec.Defaults = spec.Defaults.Clone()
	r.specs[spec.ID] = spec
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the spec registered for id.
func (r *Registry) Lookup(id string) (Spec, bool) {
	if r == nil {
		return Spec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// Resolve constructs a module by ID, layering cfg over the spec defaults.
func (r *Registry) Resolve(id string, env Env, cfg Config) (Module, error) {
	spec, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return spec.Build(env, cfg)
}

// Build runs the spec's factory with cfg layered over the defaults and
// validates the result.
func (s Spec) Build(env Env, cfg Config) (Module, error) {
	mod, err := s.Factory(env.withDefaults(), s.Defaults.Merge(cfg))
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, fmt.Errorf("module: factory for %s returned nil", s.ID)
	}
	if err := mod.Info().Validate(); err != nil {
		return nil, err
	}
	return mod, nil
}

// IDs returns a sorted list of registered module identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
