package domain

import (
	"encoding/json"
	"time"
)

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusArchived:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
)

type MessageType string

const (
	MessageTypeUser          MessageType = "user"
	MessageTypeCollaboration MessageType = "collaboration"
	MessageTypeSystem        MessageType = "system"
)

// Engine names the backend an agent's queries are routed to.
type Engine string

const (
	EngineOpenAI     Engine = "openai"
	EngineGroq       Engine = "groq"
	EngineDeepSeek   Engine = "deepseek"
	EngineXAI        Engine = "xai"
	EngineOpenRouter Engine = "openrouter"
	EngineMistral    Engine = "mistral"
	EngineEcho       Engine = "echo"
)

var Engines = []Engine{
	EngineOpenAI,
	EngineGroq,
	EngineDeepSeek,
	EngineXAI,
	EngineOpenRouter,
	EngineMistral,
	EngineEcho,
}

func (e Engine) Valid() bool {
	for _, known := range Engines {
		if e == known {
			return true
		}
	}
	return false
}

type ModelParams struct {
	Name        string  `json:"name" yaml:"name"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

type Agent struct {
	Name        string      `json:"name" yaml:"name"`
	Role        string      `json:"role" yaml:"role"`
	Description string      `json:"description" yaml:"description"`
	Engine      Engine      `json:"engine" yaml:"engine"`
	Model       ModelParams `json:"model" yaml:"model"`
}

type Message struct {
	Sender    string      `json:"sender" yaml:"sender"`
	Content   string      `json:"content" yaml:"content"`
	Timestamp time.Time   `json:"timestamp" yaml:"timestamp"`
	Type      MessageType `json:"type" yaml:"type"`
}

type Task struct {
	ID                string            `json:"id" yaml:"id"`
	Title             string            `json:"title" yaml:"title"`
	Description       string            `json:"description" yaml:"description"`
	AssignedAgents    []string          `json:"assigned_agents" yaml:"assigned_agents"`
	Dependencies      []string          `json:"dependencies" yaml:"dependencies"`
	Status            TaskStatus        `json:"status" yaml:"status"`
	Priority          int               `json:"priority" yaml:"priority"`
	EstimatedDuration int               `json:"estimated_duration" yaml:"estimated_duration"`
	CreatedAt         time.Time         `json:"created_at" yaml:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Result            string            `json:"result,omitempty" yaml:"result,omitempty"`
	AgentResults      map[string]string `json:"agent_results,omitempty" yaml:"agent_results,omitempty"`
}

type Milestone struct {
	ID          string          `json:"id" yaml:"id"`
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	DueDate     time.Time       `json:"due_date" yaml:"due_date"`
	Status      MilestoneStatus `json:"status" yaml:"status"`
	Tasks       []string        `json:"tasks" yaml:"tasks"`
}

type Project struct {
	ID                  string        `json:"id" yaml:"id"`
	Name                string        `json:"name" yaml:"name"`
	Description         string        `json:"description" yaml:"description"`
	CreatedBy           string        `json:"created_by" yaml:"created_by"`
	CreatedAt           time.Time     `json:"created_at" yaml:"created_at"`
	Status              ProjectStatus `json:"status" yaml:"status"`
	AIAgents            []string      `json:"ai_agents" yaml:"ai_agents"`
	ConversationHistory []Message     `json:"conversation_history" yaml:"conversation_history"`
	Tasks               []Task        `json:"tasks" yaml:"tasks"`
	Milestones          []Milestone   `json:"milestones" yaml:"milestones"`
	Tags                []string      `json:"tags" yaml:"tags"`
	CurrentTask         string        `json:"current_task,omitempty" yaml:"current_task,omitempty"`
	LastUpdated         time.Time     `json:"last_updated" yaml:"last_updated"`
}

type AgentContribution struct {
	AgentName    string            `json:"agent_name" yaml:"agent_name"`
	Role         string            `json:"role" yaml:"role"`
	Contribution string            `json:"contribution" yaml:"contribution"`
	Confidence   float64           `json:"confidence" yaml:"confidence"`
	Timestamp    time.Time         `json:"timestamp" yaml:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type ProjectStats struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	CompletionRate float64 `json:"completion_rate"`
	TotalMessages  int     `json:"total_messages"`
	AgentCount     int     `json:"ai_agents_count"`
	DaysActive     int     `json:"days_active"`
}

type AgentStats struct {
	Contributions int      `json:"contributions"`
	AvgConfidence float64  `json:"avg_confidence"`
	Roles         []string `json:"roles"`
}

type CollaborationStats struct {
	TotalContributions int                   `json:"total_contributions"`
	UniqueAgents       int                   `json:"unique_agents"`
	AgentStats         map[string]AgentStats `json:"agent_stats,omitempty"`
	Duration           time.Duration         `json:"-"`
}

type collaborationStatsJSON struct {
	TotalContributions int                   `json:"total_contributions"`
	UniqueAgents       int                   `json:"unique_agents"`
	AgentStats         map[string]AgentStats `json:"agent_stats,omitempty"`
	DurationSeconds    float64               `json:"collaboration_duration"`
}

// MarshalJSON writes Duration as collaboration_duration in seconds.
func (s CollaborationStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(collaborationStatsJSON{
		TotalContributions: s.TotalContributions,
		UniqueAgents:       s.UniqueAgents,
		AgentStats:         s.AgentStats,
		DurationSeconds:    s.Duration.Seconds(),
	})
}

func (s *CollaborationStats) UnmarshalJSON(data []byte) error {
	var v collaborationStatsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = CollaborationStats{
		TotalContributions: v.TotalContributions,
		UniqueAgents:       v.UniqueAgents,
		AgentStats:         v.AgentStats,
		Duration:           time.Duration(v.DurationSeconds * float64(time.Second)),
	}
	return nil
}

type RoundEventKind string

const (
	RoundEventStarted      RoundEventKind = "round_started"
	RoundEventTaskUpdated  RoundEventKind = "task_updated"
	RoundEventContribution RoundEventKind = "contribution"
	RoundEventFinished     RoundEventKind = "round_finished"
)

// RoundEvent reports progress of a collaboration round to live subscribers.
type RoundEvent struct {
	Kind       RoundEventKind `json:"kind"`
	ProjectID  string         `json:"project_id"`
	RoundID    string         `json:"round_id"`
	TaskID     string         `json:"task_id,omitempty"`
	TaskStatus TaskStatus     `json:"task_status,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Message    string         `json:"message,omitempty"`
	Time       time.Time      `json:"time"`
}
