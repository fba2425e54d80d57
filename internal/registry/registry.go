package registry

import (
	"errors"
	"strings"
	"sync"

	"collabbot/internal/domain"
)

var ErrInvalidAgent = errors.New("agent name is empty")

// Registry is the set of agents available for collaboration, keyed by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	order  []string
}

func New(agents ...domain.Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]domain.Agent)}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register inserts agent, overwriting an existing entry with the same name
// in place.
func (r *Registry) Register(agent domain.Agent) error {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return ErrInvalidAgent
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agent.Name]; !ok {
		r.order = append(r.order, agent.Name)
	}
	r.agents[agent.Name] = agent
	return nil
}

func (r *Registry) Resolve(name string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// All returns every agent in registration order.
func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Replace swaps the whole agent set. Nothing is changed if any agent is invalid.
func (r *Registry) Replace(agents []domain.Agent) error {
	next := make(map[string]domain.Agent, len(agents))
	order := make([]string, 0, len(agents))
	for _, a := range agents {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return ErrInvalidAgent
		}
		if _, ok := next[a.Name]; !ok {
			order = append(order, a.Name)
		}
		next[a.Name] = a
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = next
	r.order = order
	return nil
}
