package audiograph

import (
	"errors"
	"fmt"
	"slices"
)

type (
	// Factory builds a node from the parameters given in a patch file.
	Factory func(params map[string]float64) (Node, error)

	// Registry maps node type names to factories.
	Registry struct {
		factories map[string]Factory
	}
)

var (
	errDuplicateType = errors.New("duplicate node type")
	errUnknownType   = errors.New("unknown node type")
)

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a factory for the given node type.
func (r *Registry) Register(nodeType string, f Factory) error {
	if nodeType == "" {
		return errors.New("empty node type")
	}
	if f == nil {
		return errors.New("nil factory")
	}
	if _, ok := r.factories[nodeType]; ok {
		return fmt.Errorf("%w: %s", errDuplicateType, nodeType)
	}
	r.factories[nodeType] = f
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(nodeType string, f Factory) {
	if err := r.Register(nodeType, f); err != nil {
		panic("audiograph registry: " + err.Error())
	}
}

// Lookup returns the factory for the given type, or nil.
func (r *Registry) Lookup(nodeType string) Factory {
	return r.factories[nodeType]
}

// New builds a node of the given type.
func (r *Registry) New(nodeType string, params map[string]float64) (Node, error) {
	f := r.factories[nodeType]
	if f == nil {
		return nil, fmt.Errorf("%w: %s", errUnknownType, nodeType)
	}
	return f(params)
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Param returns params[key] or def when the key is absent.
func Param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
