package llm

import (
	"fmt"
	"log/slog"

	"hedgefund/internal/domain"
)

// Registry holds the configured providers by name. It is filled once at
// startup and then resolves the chain every specialist talks to.
type Registry struct {
	providers map[string]domain.LLMProvider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider under its Name.
func (r *Registry) Register(provider domain.LLMProvider) error {
	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, "provider "+name)
	}
	r.providers[name] = provider
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Resolve returns the provider named primary, behind a FailoverProvider when
// fallbacks are given. A fallback naming the primary is skipped. Unknown
// names are configuration errors.
func (r *Registry) Resolve(primary string, fallbacks []string, logger *slog.Logger) (domain.LLMProvider, error) {
	p, ok := r.providers[primary]
	if !ok {
		return nil, domain.NewConfigurationError("Registry.Resolve",
			fmt.Sprintf("default llm provider %q is not configured", primary))
	}

	var chain []domain.LLMProvider
	for _, name := range fallbacks {
		if name == primary {
			continue
		}
		fb, ok := r.providers[name]
		if !ok {
			return nil, domain.NewConfigurationError("Registry.Resolve",
				fmt.Sprintf("failover provider %q is not configured", name))
		}
		chain = append(chain, fb)
	}
	if len(chain) == 0 {
		return p, nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return NewFailoverProvider(p, chain, logger), nil
}
