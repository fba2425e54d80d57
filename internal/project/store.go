package project

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabbot/internal/cerr"
	"collabbot/internal/domain"
)

type Config struct {
	MaxAgentsPerProject   int
	MaxMessagesPerProject int
	Now                   func() time.Time
	NewID                 func() string
}

func (c Config) withDefaults() Config {
	if c.MaxAgentsPerProject <= 0 {
		c.MaxAgentsPerProject = 5
	}
	if c.MaxMessagesPerProject <= 0 {
		c.MaxMessagesPerProject = 1000
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Store is the in-memory project map backed by a Backend. Every mutation is
// applied to a copy, persisted, and only then made visible.
type Store struct {
	backend Backend
	codec   Codec
	cfg     Config
	logger  *slog.Logger

	mu       sync.RWMutex
	projects map[string]domain.Project
	order    []string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type CreateInput struct {
	Owner       string
	Name        string
	Description string
	Agents      []string
	Tags        []string
}

// Update lists the fields that may be changed. Nil fields are left alone.
type Update struct {
	Name        *string
	Description *string
	Status      *domain.ProjectStatus
	Agents      *[]string
	Tags        *[]string
	CurrentTask *string
}

type TaskInput struct {
	Title             string
	Description       string
	Agents            []string
	Priority          int
	EstimatedDuration int
}

type MilestoneInput struct {
	Title       string
	Description string
	DueDate     time.Time
	Tasks       []string
}

// NewStore loads every record from backend. Records that cannot be decoded
// are skipped with a warning.
func NewStore(ctx context.Context, backend Backend, codec Codec, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:  backend,
		codec:    codec,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		projects: make(map[string]domain.Project),
		locks:    make(map[string]*sync.Mutex),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	records, err := s.backend.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	loaded := make([]domain.Project, 0, len(records))
	for _, rec := range records {
		p, err := s.codec.Unmarshal(rec.Data)
		if err != nil {
			s.logger.Warn("skip undecodable project record", "key", rec.Key, "error", err)
			continue
		}
		if strings.TrimSpace(p.ID) == "" {
			s.logger.Warn("skip project record without id", "key", rec.Key)
			continue
		}
		loaded = append(loaded, normalize(p))
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].CreatedAt.Equal(loaded[j].CreatedAt) {
			return loaded[i].ID < loaded[j].ID
		}
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})
	for _, p := range loaded {
		if _, dup := s.projects[p.ID]; !dup {
			s.order = append(s.order, p.ID)
		}
		s.projects[p.ID] = p
	}
	s.logger.Debug("projects loaded", "count", len(s.order), "records", len(records))
	return nil
}

func (s *Store) Create(ctx context.Context, in CreateInput) (domain.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Project{}, cerr.NewError(cerr.InvalidArgument, "project name is required", nil)
	}
	agents := cleanNames(in.Agents)
	if len(agents) > s.cfg.MaxAgentsPerProject {
		return domain.Project{}, cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("a project can have at most %d agents", s.cfg.MaxAgentsPerProject), nil)
	}

	now := s.cfg.Now()
	p := domain.Project{
		ID:                  s.cfg.NewID(),
		Name:                name,
		Description:         strings.TrimSpace(in.Description),
		CreatedBy:           strings.TrimSpace(in.Owner),
		CreatedAt:           now,
		Status:              domain.ProjectStatusActive,
		AIAgents:            agents,
		ConversationHistory: []domain.Message{},
		Tasks:               []domain.Task{},
		Milestones:          []domain.Milestone{},
		Tags:                cleanNames(in.Tags),
		LastUpdated:         now,
	}

	if err := s.persist(ctx, p); err != nil {
		return domain.Project{}, err
	}
	s.mu.Lock()
	s.projects[p.ID] = p
	s.order = append(s.order, p.ID)
	s.mu.Unlock()

	s.logger.Info("project created", "project_id", p.ID, "owner", p.CreatedBy, "agents", len(agents))
	return p.Clone(), nil
}

func (s *Store) Get(id string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, notFound(id)
	}
	return p.Clone(), nil
}

func (s *Store) List() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Project, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.projects[id].Clone())
	}
	return out
}

func (s *Store) ListForOwner(owner string) []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Project{}
	for _, id := range s.order {
		if p := s.projects[id]; p.CreatedBy == owner {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (s *Store) Update(ctx context.Context, id string, u Update) (domain.Project, error) {
	return s.mutate(ctx, id, func(p *domain.Project) error {
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if name == "" {
				return cerr.NewError(cerr.InvalidArgument, "project name is required", nil)
			}
			p.Name = name
		}
		if u.Description != nil {
			p.Description = strings.TrimSpace(*u.Description)
		}
		if u.Status != nil {
			if !u.Status.Valid() {
				return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown project status %q", *u.Status), nil)
			}
			p.Status = *u.Status
		}
		if u.Agents != nil {
			agents := cleanNames(*u.Agents)
			if len(agents) > s.cfg.MaxAgentsPerProject {
				return cerr.NewError(cerr.InvalidArgument,
					fmt.Sprintf("a project can have at most %d agents", s.cfg.MaxAgentsPerProject), nil)
			}
			p.AIAgents = agents
		}
		if u.Tags != nil {
			p.Tags = cleanNames(*u.Tags)
		}
		if u.CurrentTask != nil {
			p.CurrentTask = strings.TrimSpace(*u.CurrentTask)
		}
		return nil
	})
}

func (s *Store) AddTask(ctx context.Context, projectID string, in TaskInput) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, cerr.NewError(cerr.InvalidArgument, "task title is required", nil)
	}
	priority := in.Priority
	if priority < 1 || priority > 5 {
		priority = 1
	}
	task := domain.Task{
		ID:                s.cfg.NewID(),
		Title:             title,
		Description:       strings.TrimSpace(in.Description),
		AssignedAgents:    cleanNames(in.Agents),
		Dependencies:      []string{},
		Status:            domain.TaskStatusPending,
		Priority:          priority,
		EstimatedDuration: in.EstimatedDuration,
		CreatedAt:         s.cfg.Now(),
	}
	_, err := s.mutate(ctx, projectID, func(p *domain.Project) error {
		p.Tasks = append(p.Tasks, task)
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return task.Clone(), nil
}

// CompleteTask marks taskID completed with result. An unknown task id is a
// NotFound error and nothing is persisted.
func (s *Store) CompleteTask(ctx context.Context, projectID, taskID, result string) error {
	_, err := s.mutate(ctx, projectID, func(p *domain.Project) error {
		for i := range p.Tasks {
			if p.Tasks[i].ID != taskID {
				continue
			}
			now := s.cfg.Now()
			p.Tasks[i].Status = domain.TaskStatusCompleted
			p.Tasks[i].CompletedAt = &now
			p.Tasks[i].Result = result
			if p.CurrentTask == taskID {
				p.CurrentTask = ""
			}
			return nil
		}
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found in project %s", taskID, projectID), nil)
	})
	return err
}

func (s *Store) AddMilestone(ctx context.Context, projectID string, in MilestoneInput) (domain.Milestone, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Milestone{}, cerr.NewError(cerr.InvalidArgument, "milestone title is required", nil)
	}
	m := domain.Milestone{
		ID:          s.cfg.NewID(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		DueDate:     in.DueDate.UTC(),
		Status:      domain.MilestoneStatusPending,
		Tasks:       cleanNames(in.Tasks),
	}
	_, err := s.mutate(ctx, projectID, func(p *domain.Project) error {
		p.Milestones = append(p.Milestones, m)
		return nil
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	return m.Clone(), nil
}

// AppendMessages records messages in the conversation history, dropping the
// oldest entries beyond the configured maximum.
func (s *Store) AppendMessages(ctx context.Context, projectID string, msgs ...domain.Message) error {
	_, err := s.mutate(ctx, projectID, func(p *domain.Project) error {
		for _, m := range msgs {
			if m.Timestamp.IsZero() {
				m.Timestamp = s.cfg.Now()
			}
			p.ConversationHistory = append(p.ConversationHistory, m)
		}
		if over := len(p.ConversationHistory) - s.cfg.MaxMessagesPerProject; over > 0 {
			p.ConversationHistory = append([]domain.Message{}, p.ConversationHistory[over:]...)
		}
		return nil
	})
	return err
}

func (s *Store) Stats(projectID string) (domain.ProjectStats, error) {
	p, err := s.Get(projectID)
	if err != nil {
		return domain.ProjectStats{}, err
	}
	completed := 0
	for _, t := range p.Tasks {
		if t.Status == domain.TaskStatusCompleted {
			completed++
		}
	}
	stats := domain.ProjectStats{
		TotalTasks:     len(p.Tasks),
		CompletedTasks: completed,
		TotalMessages:  len(p.ConversationHistory),
		AgentCount:     len(p.AIAgents),
		DaysActive:     int(s.cfg.Now().Sub(p.CreatedAt) / (24 * time.Hour)),
	}
	if stats.TotalTasks > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.TotalTasks) * 100
	}
	return stats, nil
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*domain.Project) error) (domain.Project, error) {
	lock, ok := s.projectLock(id)
	if !ok {
		return domain.Project{}, notFound(id)
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current := s.projects[id]
	s.mu.RUnlock()

	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Project{}, err
	}
	next.LastUpdated = s.cfg.Now()
	if err := s.persist(ctx, next); err != nil {
		return domain.Project{}, err
	}

	s.mu.Lock()
	s.projects[id] = next
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *Store) persist(ctx context.Context, p domain.Project) error {
	data, err := s.codec.Marshal(p)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("marshal project %s: %w", p.ID, err))
	}
	if err := s.backend.Write(ctx, p.ID, data); err != nil {
		return cerr.WrapStorageWriteError("project "+p.ID, err)
	}
	return nil
}

// projectLock returns the mutation lock of a stored project. Unknown ids
// get no lock.
func (s *Store) projectLock(id string) (*sync.Mutex, bool) {
	s.mu.RLock()
	_, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l, true
}

func notFound(id string) error {
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("project %s not found", id), nil)
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// normalize replaces nil collections from older records with empty ones.
func normalize(p domain.Project) domain.Project {
	p = p.Clone()
	if p.Status == "" {
		p.Status = domain.ProjectStatusActive
	}
	return p
}
