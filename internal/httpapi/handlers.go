package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"collabbot/internal/collab"
	"collabbot/internal/domain"
	"collabbot/internal/project"
)

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.summary())
}

func (s *server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.All())
}

func (s *server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		writeJSON(w, http.StatusOK, s.projects.ListForOwner(owner))
		return
	}
	writeJSON(w, http.StatusOK, s.projects.List())
}

type createProjectRequest struct {
	Owner       string   `json:"owner"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Agents      []string `json:"agents"`
	Tags        []string `json:"tags"`
}

func (s *server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.projects.Create(r.Context(), project.CreateInput{
		Owner:       req.Owner,
		Name:        req.Name,
		Description: req.Description,
		Agents:      req.Agents,
		Tags:        req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProjectRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Status      *domain.ProjectStatus `json:"status"`
	Agents      *[]string             `json:"agents"`
	Tags        *[]string             `json:"tags"`
	CurrentTask *string               `json:"current_task"`
}

func (s *server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.projects.Update(r.Context(), chi.URLParam(r, "id"), project.Update{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Agents:      req.Agents,
		Tags:        req.Tags,
		CurrentTask: req.CurrentTask,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.projects.Stats(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type addTaskRequest struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Agents            []string `json:"agents"`
	Priority          int      `json:"priority"`
	EstimatedDuration int      `json:"estimated_duration"`
}

func (s *server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	task, err := s.projects.AddTask(r.Context(), chi.URLParam(r, "id"), project.TaskInput{
		Title:             req.Title,
		Description:       req.Description,
		Agents:            req.Agents,
		Priority:          req.Priority,
		EstimatedDuration: req.EstimatedDuration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type completeTaskRequest struct {
	Result string `json:"result"`
}

func (s *server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	projectID := chi.URLParam(r, "id")
	taskID := chi.URLParam(r, "taskID")
	if err := s.projects.CompleteTask(r.Context(), projectID, taskID, req.Result); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "task_id": taskID})
}

type addMilestoneRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date"`
	Tasks       []string  `json:"tasks"`
}

func (s *server) handleAddMilestone(w http.ResponseWriter, r *http.Request) {
	var req addMilestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.projects.AddMilestone(r.Context(), chi.URLParam(r, "id"), project.MilestoneInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Tasks:       req.Tasks,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type collaborateRequest struct {
	Sender  string `json:"sender"`
	Request string `json:"request"`
}

func (s *server) handleCollaborate(w http.ResponseWriter, r *http.Request) {
	var req collaborateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	round, err := s.collab.StartCollaboration(r.Context(), collab.RoundInput{
		ProjectID: chi.URLParam(r, "id"),
		Sender:    req.Sender,
		Request:   req.Request,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

func (s *server) handleRounds(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.collab.Rounds(id))
}

func (s *server) handleContributions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.collab.Contributions(id))
}

func (s *server) handleCollaborationStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireProject(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.collab.Stats(id))
}

func (s *server) requireProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.projects.Get(id); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return id, true
}
