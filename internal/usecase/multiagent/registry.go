package multiagent

import (
	"log/slog"
	"sync"

	"hedgefund/internal/domain"
	"hedgefund/internal/usecase"
)

// Registry holds the constructed specialists in registration order.
type Registry struct {
	mu          sync.RWMutex
	specialists map[string]*usecase.Specialist
	order       []string
	logger      *slog.Logger
}

// NewRegistry creates an empty specialist registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		specialists: make(map[string]*usecase.Specialist),
		logger:      logger,
	}
}

// Register adds a specialist. Returns ErrDuplicate if the name is taken.
func (r *Registry) Register(s *usecase.Specialist) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.specialists[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.specialists[name] = s
	r.order = append(r.order, name)
	r.logger.Debug("specialist registered", "specialist", name, "tools", len(s.Identity().Tools))
	return nil
}

// Get returns the named specialist, or ErrSpecialistNotFound.
func (r *Registry) Get(name string) (*usecase.Specialist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specialists[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrSpecialistNotFound, name)
	}
	return s, nil
}

// Names returns specialist names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns the identities of every registered specialist.
func (r *Registry) List() []domain.SpecialistIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SpecialistIdentity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specialists[name].Identity())
	}
	return out
}
