package collab

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"collabbot/internal/cerr"
	"collabbot/internal/domain"
	"collabbot/internal/llm"
)

const (
	defaultContextMessages = 5
	defaultMessageTruncate = 100
	defaultConfidence      = 0.8
	defaultMaxConcurrency  = 8
	collaborationSender    = "collaboration"
	defaultRequestSender   = "user"
)

var defaultSynthesisPreference = []string{"openai_gpt4", "openai_gpt35"}

// EventPublisher receives round progress events.
type EventPublisher interface {
	Publish(ev domain.RoundEvent) error
}

// ProjectStore is the part of the project store a round needs.
type ProjectStore interface {
	Get(id string) (domain.Project, error)
	AppendMessages(ctx context.Context, projectID string, msgs ...domain.Message) error
}

type Config struct {
	ContextMessages     int
	MessageTruncate     int
	DefaultConfidence   float64
	MaxConcurrency      int
	SynthesisAgent      string
	SynthesisPreference []string
	Events              EventPublisher
	Now                 func() time.Time
	NewRoundID          func() string
}

func (c Config) withDefaults() Config {
	if c.ContextMessages <= 0 {
		c.ContextMessages = defaultContextMessages
	}
	if c.MessageTruncate <= 0 {
		c.MessageTruncate = defaultMessageTruncate
	}
	if c.DefaultConfidence <= 0 || c.DefaultConfidence > 1 {
		c.DefaultConfidence = defaultConfidence
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.SynthesisPreference == nil {
		c.SynthesisPreference = defaultSynthesisPreference
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.NewRoundID == nil {
		c.NewRoundID = newULID
	}
	return c
}

func newULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Engine runs collaboration rounds: it plans a task graph for the project's
// agents, executes it and synthesizes one response.
type Engine struct {
	agents   AgentResolver
	projects ProjectStore
	querier  llm.Querier
	ledger   *Ledger
	cfg      Config
	logger   *slog.Logger

	mu     sync.RWMutex
	active map[string]map[string]*round
	last   map[string]*round
}

func New(agents AgentResolver, projects ProjectStore, querier llm.Querier, ledger *Ledger, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = NewLedger(nil, logger)
	}
	return &Engine{
		agents:   agents,
		projects: projects,
		querier:  querier,
		ledger:   ledger,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		active:   make(map[string]map[string]*round),
		last:     make(map[string]*round),
	}
}

type RoundInput struct {
	ProjectID string
	Sender    string
	Request   string
}

// Round is the outcome of one collaboration round.
type Round struct {
	ID            string                     `json:"id"`
	ProjectID     string                     `json:"project_id"`
	Request       string                     `json:"request"`
	Response      string                     `json:"response"`
	SynthesizedBy string                     `json:"synthesized_by,omitempty"`
	Tasks         []domain.Task              `json:"tasks"`
	Results       map[string]string          `json:"results"`
	Contributions []domain.AgentContribution `json:"contributions"`
	StartedAt     time.Time                  `json:"started_at"`
	CompletedAt   time.Time                  `json:"completed_at"`
}

// RoundView is a snapshot of a running or most recently finished round.
type RoundView struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Request     string        `json:"request"`
	Running     bool          `json:"running"`
	Tasks       []domain.Task `json:"tasks"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// StartCollaboration records the request in the project's conversation,
// runs a round and records the synthesized response. Agent failures only
// reduce the set of contributions; a missing project or a failure to
// record the conversation is returned as an error.
func (e *Engine) StartCollaboration(ctx context.Context, in RoundInput) (Round, error) {
	request := strings.TrimSpace(in.Request)
	if request == "" {
		return Round{}, cerr.NewError(cerr.InvalidArgument, "collaboration request is required", nil)
	}
	if _, err := e.projects.Get(in.ProjectID); err != nil {
		return Round{}, err
	}
	sender := strings.TrimSpace(in.Sender)
	if sender == "" {
		sender = defaultRequestSender
	}
	started := e.cfg.Now()
	if err := e.projects.AppendMessages(ctx, in.ProjectID, domain.Message{
		Sender:    sender,
		Content:   request,
		Timestamp: started,
		Type:      domain.MessageTypeUser,
	}); err != nil {
		return Round{}, err
	}
	p, err := e.projects.Get(in.ProjectID)
	if err != nil {
		return Round{}, err
	}

	roundID := e.cfg.NewRoundID()
	rnd := newRound(roundID, p.ID, request, BuildTaskGraph(roundID, p.AIAgents, e.agents, started), started)
	e.track(rnd)
	logger := e.logger.With("project_id", p.ID, "round_id", roundID)
	logger.Info("collaboration round started", "agents", len(p.AIAgents), "tasks", len(rnd.tasks))
	e.emit(domain.RoundEvent{Kind: domain.RoundEventStarted, ProjectID: p.ID, RoundID: roundID, Message: request})

	results, err := e.runGraph(ctx, rnd, p)
	if err != nil {
		e.finish(rnd, e.cfg.Now())
		e.emit(domain.RoundEvent{Kind: domain.RoundEventFinished, ProjectID: p.ID, RoundID: roundID, Message: err.Error()})
		return Round{}, err
	}

	contributions := e.ledger.Round(p.ID, roundID)
	response, synthesizer := e.synthesize(ctx, p, request, contributions)
	completed := e.cfg.Now()
	e.finish(rnd, completed)
	e.emit(domain.RoundEvent{
		Kind:      domain.RoundEventFinished,
		ProjectID: p.ID,
		RoundID:   roundID,
		Agent:     synthesizer,
		Message:   response,
		Time:      completed,
	})

	if err := e.projects.AppendMessages(ctx, p.ID, domain.Message{
		Sender:    collaborationSender,
		Content:   response,
		Timestamp: completed,
		Type:      domain.MessageTypeCollaboration,
	}); err != nil {
		return Round{}, err
	}
	logger.Info("collaboration round finished",
		"contributions", len(contributions),
		"completed_tasks", len(results),
		"synthesized_by", synthesizer,
		"elapsed", completed.Sub(started),
	)

	return Round{
		ID:            roundID,
		ProjectID:     p.ID,
		Request:       request,
		Response:      response,
		SynthesizedBy: synthesizer,
		Tasks:         rnd.snapshot(),
		Results:       results,
		Contributions: contributions,
		StartedAt:     started,
		CompletedAt:   completed,
	}, nil
}

// synthesize produces the round's final response and names the agent that
// wrote it, empty when the contributions were concatenated.
func (e *Engine) synthesize(ctx context.Context, p domain.Project, request string, contributions []domain.AgentContribution) (string, string) {
	if len(contributions) == 0 {
		return NoContributionsMessage, ""
	}
	agent, ok := e.synthesisAgent()
	if !ok {
		return concatenate(contributions), ""
	}
	text, err := e.querier.Query(ctx, agent, synthesisPrompt(p, request, contributions))
	if err != nil {
		e.logger.Warn("synthesis query failed, concatenating contributions",
			"project_id", p.ID,
			"agent", agent.Name,
			"error", err,
		)
		return concatenate(contributions), ""
	}
	return text, agent.Name
}

// SetSynthesis changes the synthesis agent and fallback preference used by
// rounds started afterwards. A nil preference restores the default list.
func (e *Engine) SetSynthesis(agent string, preference []string) {
	if preference == nil {
		preference = defaultSynthesisPreference
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.SynthesisAgent = agent
	e.cfg.SynthesisPreference = append([]string(nil), preference...)
}

func (e *Engine) synthesisAgent() (domain.Agent, bool) {
	e.mu.RLock()
	configured := e.cfg.SynthesisAgent
	preference := e.cfg.SynthesisPreference
	e.mu.RUnlock()

	if configured != "" {
		if a, ok := e.agents.Resolve(configured); ok {
			return a, true
		}
		e.logger.Warn("configured synthesis agent is not registered", "agent", configured)
	}
	for _, name := range preference {
		if a, ok := e.agents.Resolve(name); ok {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func (e *Engine) emit(ev domain.RoundEvent) {
	if e.cfg.Events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.cfg.Now()
	}
	if err := e.cfg.Events.Publish(ev); err != nil {
		e.logger.Debug("round event dropped", "kind", ev.Kind, "round_id", ev.RoundID, "error", err)
	}
}

func (e *Engine) track(r *round) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byRound, ok := e.active[r.projectID]
	if !ok {
		byRound = make(map[string]*round)
		e.active[r.projectID] = byRound
	}
	byRound[r.id] = r
}

func (e *Engine) finish(r *round, at time.Time) {
	r.finish(at)
	e.mu.Lock()
	defer e.mu.Unlock()
	if byRound, ok := e.active[r.projectID]; ok {
		delete(byRound, r.id)
		if len(byRound) == 0 {
			delete(e.active, r.projectID)
		}
	}
	e.last[r.projectID] = r
}

// Rounds returns the running rounds of projectID, oldest first, followed by
// the most recently finished one.
func (e *Engine) Rounds(projectID string) []RoundView {
	e.mu.RLock()
	running := make([]*round, 0, len(e.active[projectID])+1)
	for _, r := range e.active[projectID] {
		running = append(running, r)
	}
	last := e.last[projectID]
	e.mu.RUnlock()

	sort.Slice(running, func(i, j int) bool {
		if !running[i].started.Equal(running[j].started) {
			return running[i].started.Before(running[j].started)
		}
		return running[i].id < running[j].id
	})
	if last != nil {
		running = append(running, last)
	}
	out := make([]RoundView, 0, len(running))
	for _, r := range running {
		out = append(out, r.view())
	}
	return out
}

func (e *Engine) Contributions(projectID string) []domain.AgentContribution {
	return e.ledger.Contributions(projectID)
}

func (e *Engine) Stats(projectID string) domain.CollaborationStats {
	return e.ledger.Stats(projectID)
}
