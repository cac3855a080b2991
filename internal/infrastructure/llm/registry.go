package llm

import (
	"errors"
	"fmt"

	"github.com/aineus/aineus/internal/ports"
)

// ErrUnknownProvider is returned when a prompt names a backend that was
// never registered. It is a configuration error: fatal for the request,
// not for the process.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Factory builds a client from prompt-level provider configuration
// (model, temperature, and similar free-form overrides).
type Factory func(overrides map[string]any) (ports.LLMClient, error)

// Registry maps provider names to factories. It is built once during
// application wiring and passed by reference to whoever generates text;
// there is no global registration.
type Registry struct {
	defaultName string
	factories   map[string]Factory
}

// NewRegistry builds an empty registry with a default provider name used
// when a prompt does not pick one.
func NewRegistry(defaultName string) *Registry {
	return &Registry{defaultName: defaultName, factories: map[string]Factory{}}
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Resolve instantiates the named provider, falling back to the registry
// default for an empty name.
func (r *Registry) Resolve(name string, overrides map[string]any) (ports.LLMClient, error) {
	if name == "" {
		name = r.defaultName
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(overrides)
}

// stringOverride pulls a string field out of prompt-level llm_config.
func stringOverride(overrides map[string]any, key, fallback string) string {
	if v, ok := overrides[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// floatOverride pulls a numeric field out of prompt-level llm_config.
// JSON decoding hands us float64 for every number.
func floatOverride(overrides map[string]any, key string, fallback float64) float64 {
	switch v := overrides[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
