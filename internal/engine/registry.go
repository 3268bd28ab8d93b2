package engine

import (
	"sort"
	"strings"
)

// Registry is a closed, explicit mapping from stable strategy keys to
// factories. Keys are uppercase. There is no reflection-based or path-based
// discovery; everything a run can use is registered up front.
type Registry struct {
	factories map[string]StrategyFactory
}

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]StrategyFactory)}
}

// Register adds one strategy factory under a stable key. Registering the
// same key twice is an error.
func (r *Registry) Register(key string, factory StrategyFactory) error {
	normalized := strings.ToUpper(strings.TrimSpace(key))
	if normalized == "" || factory == nil {
		return ErrInputInvalid
	}
	if _, exists := r.factories[normalized]; exists {
		return ErrDuplicateStrategy
	}
	r.factories[normalized] = factory
	return nil
}

// Resolve returns a fresh strategy instance for a registered key.
func (r *Registry) Resolve(key string) (Strategy, error) {
	factory, ok := r.factories[strings.ToUpper(strings.TrimSpace(key))]
	if !ok {
		return nil, NewUnknownStrategyError(key)
	}
	return factory(), nil
}

// Keys returns the registered strategy keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
