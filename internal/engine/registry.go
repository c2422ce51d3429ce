package engine

import (
	"context"
	"sort"
)

// InvokeFunc runs a capability with fully resolved arguments. It returns
// a structured output mapping, or a *CapabilityError (possibly carrying a
// partial output) when the external operation fails.
type InvokeFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Capability is one registered external operation.
type Capability struct {
	Name        string
	Description string
	// Required lists argument names that must be present in a step's
	// argument mapping. Presence is checked by the validator, not here.
	Required []string
	// OutputKeys maps output fields to semantic blackboard keys, e.g.
	// "sheet_url" -> "sheet_url" so downstream steps and callers can
	// reference the value without knowing which step produced it.
	OutputKeys map[string]string
	Invoke     InvokeFunc
}

// Registry maps capability names to their schema and invocation function.
type Registry struct {
	caps map[string]*Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*Capability)}
}

func (r *Registry) Register(c *Capability) {
	r.caps[c.Name] = c
}

// Lookup returns the capability for a name.
func (r *Registry) Lookup(name string) (*Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered capability names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
