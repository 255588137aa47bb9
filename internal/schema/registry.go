package schema

import (
	"fmt"
	"sort"
)

// Registry maps schema names to descriptors.
type Registry struct{ schemas map[string]*Descriptor }

func NewRegistry() *Registry { return &Registry{schemas: map[string]*Descriptor{}} }

// Register adds descriptor under its own name. Registering a name twice is an error.
func (r *Registry) Register(descriptor *Descriptor) error {
	if _, exists := r.schemas[descriptor.Name()]; exists {
		return fmt.Errorf("register schema %s: %w", descriptor.Name(), ErrDuplicateSchema)
	}
	r.schemas[descriptor.Name()] = descriptor
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	descriptor, ok := r.schemas[name]
	return descriptor, ok
}
