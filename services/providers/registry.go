package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrProviderNotFound          = errors.New("provider not found")
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry resolves the configured chat and embedding providers by name.
// It is filled once at startup by RegistryBuilder.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	embedders map[string]EmbeddingProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: map[string]Provider{},
		embedders: map[string]EmbeddingProvider{},
	}
}

type named interface{ Name() string }

func insert[T named](m map[string]T, p T) error {
	name := p.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if _, dup := m[name]; dup {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}
	m[name] = p
	return nil
}

// RegisterProvider adds a chat provider. A provider that can also embed is
// registered for embeddings under the same name unless one is already there.
func (r *Registry) RegisterProvider(p Provider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := insert(r.providers, p); err != nil {
		return err
	}
	if e, ok := p.(EmbeddingProvider); ok {
		if _, taken := r.embedders[p.Name()]; !taken {
			r.embedders[p.Name()] = e
		}
	}
	return nil
}

// RegisterEmbeddingProvider adds a provider used for embeddings only.
func (r *Registry) RegisterEmbeddingProvider(p EmbeddingProvider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return insert(r.embedders, p)
}

func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

func (r *Registry) GetEmbeddingProvider(name string) (EmbeddingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.embedders[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// ListProviders returns the chat provider names, sorted.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.providers)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProviderBuilder creates a provider from its configuration.
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// RegistryBuilder maps provider names to constructors. Only the providers
// named in the configuration passed to Build are created.
type RegistryBuilder struct {
	builders map[string]ProviderBuilder
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{builders: map[string]ProviderBuilder{}}
}

func (rb *RegistryBuilder) WithProviderBuilder(name string, builder ProviderBuilder) *RegistryBuilder {
	rb.builders[name] = builder
	return rb
}

// Build creates one provider per config entry, in name order. A config
// without a matching builder is an error.
func (rb *RegistryBuilder) Build(configs map[string]ProviderConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, name := range sortedKeys(configs) {
		builder, ok := rb.builders[name]
		if !ok {
			return nil, fmt.Errorf("%w: no builder for %s", ErrProviderNotFound, name)
		}
		provider, err := builder(configs[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := registry.RegisterProvider(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}
	return registry, nil
}
