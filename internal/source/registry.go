package source

import (
	"errors"
	"fmt"
	"sort"

	"StoryIndexer/internal/config"
	"StoryIndexer/internal/ports"
)

// ErrUnknownSource is returned when no factory is registered under a name.
var ErrUnknownSource = errors.New("source is not registered")

// Factory builds a source from the run configuration.
type Factory func(cfg config.Config) (ports.Source, error)

// Registry keeps a mapping from source names to their constructors.
// Custom sources are added with Register at startup; there is no dynamic loading.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a source constructor.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Resolve returns a constructor by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Factory, error) {
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Create instantiates the source selected by the configuration.
func (r *Registry) Create(cfg config.Config) (ports.Source, error) {
	name := cfg.SourceName()
	if name == "" {
		return nil, config.ErrNoSource
	}

	factory, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	src, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create source %s: %w", name, err)
	}
	return src, nil
}

// Names lists registered source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
