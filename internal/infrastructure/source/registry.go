package source

import (
	"fmt"

	"github.com/aineus/aineus/internal/ports"
)

// DefaultProvider is used when a prompt's preferences name no source.
const DefaultProvider = "newsapi"

// Registry keeps a mapping from source provider names to strategies.
type Registry struct {
	sources map[string]ports.ArticleSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.ArticleSource{}}
}

// Register adds or replaces a source strategy.
func (r *Registry) Register(src ports.ArticleSource) {
	if r.sources == nil {
		r.sources = map[string]ports.ArticleSource{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by name, falling back to the default for an
// empty name.
func (r *Registry) Resolve(name string) (ports.ArticleSource, error) {
	if name == "" {
		name = DefaultProvider
	}
	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("news source %s is not registered", name)
}
