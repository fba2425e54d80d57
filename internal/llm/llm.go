package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"collabbot/internal/domain"
)

var (
	ErrEngineNotConfigured = errors.New("engine is not configured")
	ErrEmptyResponse       = errors.New("empty response")
)

// Querier sends a prompt on behalf of an agent and returns the generated text.
type Querier interface {
	Query(ctx context.Context, agent domain.Agent, prompt string) (string, error)
}

type Request struct {
	Agent       string
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client is one completion backend.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

const defaultQueryTimeout = 300 * time.Second

// Router dispatches each query to the Client registered for the agent's
// engine and bounds it with a timeout.
type Router struct {
	mu      sync.RWMutex
	clients map[domain.Engine]Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewRouter(timeout time.Duration, logger *slog.Logger) *Router {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		clients: make(map[domain.Engine]Client),
		timeout: timeout,
		logger:  logger,
	}
}

func (r *Router) Register(engine domain.Engine, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[engine] = client
}

// Replace swaps the whole client set. Engines missing from clients stop
// answering.
func (r *Router) Replace(clients map[domain.Engine]Client) {
	next := make(map[domain.Engine]Client, len(clients))
	for engine, client := range clients {
		next[engine] = client
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = next
}

func (r *Router) Engines() []domain.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Engine, 0, len(r.clients))
	for _, e := range domain.Engines {
		if _, ok := r.clients[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *Router) Query(ctx context.Context, agent domain.Agent, prompt string) (string, error) {
	r.mu.RLock()
	client, ok := r.clients[agent.Engine]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("agent %s: %w: %q", agent.Name, ErrEngineNotConfigured, agent.Engine)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	text, err := client.Complete(ctx, Request{
		Agent:       agent.Name,
		Model:       agent.Model.Name,
		System:      systemPrompt(agent),
		Prompt:      prompt,
		Temperature: agent.Model.Temperature,
		MaxTokens:   agent.Model.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s via %s: %w", agent.Name, agent.Engine, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("agent %s via %s: %w", agent.Name, agent.Engine, ErrEmptyResponse)
	}
	r.logger.Debug("agent query completed",
		"agent", agent.Name,
		"engine", agent.Engine,
		"elapsed", time.Since(started),
		"chars", len(text),
	)
	return text, nil
}

func systemPrompt(agent domain.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", agent.Name)
	if agent.Role != "" {
		fmt.Fprintf(&b, ", specialized in %s", agent.Role)
	}
	b.WriteString(".")
	if agent.Description != "" {
		b.WriteString(" ")
		b.WriteString(agent.Description)
	}
	return b.String()
}
