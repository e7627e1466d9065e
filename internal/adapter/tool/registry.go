package tool

import (
	"fmt"
	"log/slog"
	"sync"

	"hedgefund/internal/domain"
)

// Registry holds named tools in registration order.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool wrapped with schema validation. It fails if the name
// is taken or the tool's schema does not compile.
func (r *Registry) Register(t domain.Tool) error {
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.tools[name] = wrapped
	r.order = append(r.order, name)
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// RegisterAll registers every tool, returning the first failure.
func (r *Registry) RegisterAll(tools ...domain.Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns all registered tools in registration order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Schemas returns all tool schemas for LLM function-calling.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Subset returns a registry holding only the named tools, in the given order.
// Naming a tool that is not registered is a configuration error.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := &Registry{
		tools:  make(map[string]domain.Tool, len(names)),
		logger: r.logger,
	}
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, domain.NewConfigurationError("Registry.Subset",
				fmt.Sprintf("tool %q is not registered", name))
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = t
		sub.order = append(sub.order, name)
	}
	return sub, nil
}

var _ domain.ToolExecutor = (*Registry)(nil)
