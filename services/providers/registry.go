package providers

import (
	"errors"
	"sync"
)

// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
var ErrProviderAlreadyRegistered = errors.New("provider already registered")

// Registry holds providers in registration order. The order is the
// fallback order used by the answer generator.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// RegisterProvider appends a provider to the chain.
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	r.order = append(r.order, name)
	return nil
}

// Ordered returns the providers in registration order.
func (r *Registry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// ListProviders returns provider names in registration order.
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// ConfiguredProviders returns the names of providers that hold a credential.
func (r *Registry) ConfiguredProviders() []string {
	var names []string
	for _, p := range r.Ordered() {
		if p.Configured() {
			names = append(names, p.Name())
		}
	}
	return names
}
