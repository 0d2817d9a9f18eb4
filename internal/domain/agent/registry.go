package agent

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_agent.go -package=mocks . Agent

import (
	"fmt"
	"sort"
	"sync"
)

type instanceKey struct {
	typeName string
	class    ConfigClass
}

// Registry holds agent descriptors and factories, resolves dependency
// order, and caches one instance per (type, config class) pair.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	factories   map[string]Factory
	instances   map[instanceKey]Agent
}

func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		factories:   make(map[string]Factory),
		instances:   make(map[instanceKey]Agent),
	}
}

// Register adds a descriptor and its factory. Registering the same type
// name twice fails with DuplicateAgentError.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.TypeName == "" {
		return fmt.Errorf("descriptor type name is required")
	}
	if factory == nil {
		return fmt.Errorf("factory is required for agent type %s", desc.TypeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[desc.TypeName]; ok {
		return &DuplicateAgentError{TypeName: desc.TypeName}
	}
	r.descriptors[desc.TypeName] = desc
	r.factories[desc.TypeName] = factory
	return nil
}

// Get returns the descriptor for a type name.
func (r *Registry) Get(typeName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[typeName]
	return d, ok
}

// Descriptors returns all registered descriptors sorted by type name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeName < out[j].TypeName })
	return out
}

// ResolveOrder returns all registered type names ordered so that every
// name appears after all of its declared dependencies. A dependency cycle
// fails with CircularDependencyError naming the offending type.
func (r *Registry) ResolveOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &CircularDependencyError{TypeName: name}
		}
		state[name] = visiting
		desc := r.descriptors[name]
		for _, dep := range desc.Dependencies {
			if _, ok := r.descriptors[dep]; !ok {
				return &UnknownAgentError{TypeName: dep}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ValidateDependencies returns the declared dependencies that do not
// resolve to a registered agent type.
func (r *Registry) ValidateDependencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for name, desc := range r.descriptors {
		for _, dep := range desc.Dependencies {
			if _, ok := r.descriptors[dep]; !ok {
				missing = append(missing, fmt.Sprintf("%s -> %s", name, dep))
			}
		}
	}
	sort.Strings(missing)
	return missing
}

// CreateInstance returns the cached singleton handle for (type, class),
// constructing it on first use. Repeated calls return the same handle.
func (r *Registry) CreateInstance(typeName string, class ConfigClass) (Agent, error) {
	if class == "" {
		class = ConfigStandard
	}
	key := instanceKey{typeName: typeName, class: class}

	r.mu.RLock()
	if inst, ok := r.instances[key]; ok {
		r.mu.RUnlock()
		return inst, nil
	}
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownAgentError{TypeName: typeName}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[key]; ok {
		return inst, nil
	}
	inst, err := factory(class)
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", typeName, err)
	}
	r.instances[key] = inst
	return inst, nil
}

// ClearInstances drops all cached instances. Descriptors stay registered.
func (r *Registry) ClearInstances() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[instanceKey]Agent)
}
