package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps backend names to compilers.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	compilers map[string]Compiler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{compilers: make(map[string]Compiler)}
}

// Register installs c for name, replacing any previous compiler.
func (r *Registry) Register(name string, c Compiler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compilers[name] = c
}

// Lookup returns the compiler registered for name.
func (r *Registry) Lookup(name string) (Compiler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compilers[name]
	if !ok {
		return nil, &UnknownBackendError{Name: name, Known: r.namesLocked()}
	}
	return c, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.compilers))
	for name := range r.compilers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info builds the Info for a backend name with the given id.
// The driver comes from the registered compiler.
func (r *Registry) Info(name, id string) (Info, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: name, ID: id, Driver: c.Driver()}, nil
}

// Reference returns the Info of the reference backend.
func (r *Registry) Reference(name string) (Info, error) {
	return r.Info(name, ReferenceID(name))
}

// Targets returns Infos for the target backends, disambiguating repeated
// names. An empty list selects every registered backend.
func (r *Registry) Targets(names []string) ([]Info, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	ids := TargetIDs(names)
	infos := make([]Info, len(names))
	for i, name := range names {
		info, err := r.Info(name, ids[i])
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

// Compile compiles model for the backend described by info.
func (r *Registry) Compile(ctx context.Context, model Model, info Info, opts CompileOptions) (CompiledModule, error) {
	c, err := r.Lookup(info.Name)
	if err != nil {
		return nil, err
	}
	mod, err := c.Compile(ctx, model, info, opts)
	if err != nil {
		return nil, fmt.Errorf("compile %s for %s: %w", model.Name(), info.ID, err)
	}
	return mod, nil
}
