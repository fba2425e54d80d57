package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"collabbot/internal/cerr"
	"collabbot/internal/collab"
	"collabbot/internal/config"
	"collabbot/internal/domain"
	"collabbot/internal/project"
)

// Projects is the project store as seen by the API.
type Projects interface {
	Create(ctx context.Context, in project.CreateInput) (domain.Project, error)
	Get(id string) (domain.Project, error)
	List() []domain.Project
	ListForOwner(owner string) []domain.Project
	Update(ctx context.Context, id string, u project.Update) (domain.Project, error)
	AddTask(ctx context.Context, projectID string, in project.TaskInput) (domain.Task, error)
	CompleteTask(ctx context.Context, projectID, taskID, result string) error
	AddMilestone(ctx context.Context, projectID string, in project.MilestoneInput) (domain.Milestone, error)
	Stats(projectID string) (domain.ProjectStats, error)
}

// Collaboration runs rounds and reports on them.
type Collaboration interface {
	StartCollaboration(ctx context.Context, in collab.RoundInput) (collab.Round, error)
	Rounds(projectID string) []collab.RoundView
	Contributions(projectID string) []domain.AgentContribution
	Stats(projectID string) domain.CollaborationStats
}

type Agents interface {
	All() []domain.Agent
}

// Events streams round progress to subscribers.
type Events interface {
	Subscribe(id, projectID string) <-chan domain.RoundEvent
	Unsubscribe(id string)
}

type Config struct {
	Projects      Projects
	Collaboration Collaboration
	Agents        Agents
	Events        Events
	Summary       func() config.Summary
	CORSOrigins   []string
	Logger        *slog.Logger
	Now           func() time.Time
}

type server struct {
	projects Projects
	collab   Collaboration
	agents   Agents
	events   Events
	summary  func() config.Summary
	logger   *slog.Logger
	now      func() time.Time
}

// New returns the HTTP handler serving the collaboration API.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Summary == nil {
		cfg.Summary = func() config.Summary { return config.Summary{} }
	}
	s := &server{
		projects: cfg.Projects,
		collab:   cfg.Collaboration,
		agents:   cfg.Agents,
		events:   cfg.Events,
		summary:  cfg.Summary,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Get("/agents", s.handleAgents)
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProject)
			r.Patch("/", s.handleUpdateProject)
			r.Get("/stats", s.handleProjectStats)
			r.Post("/tasks", s.handleAddTask)
			r.Post("/tasks/{taskID}/complete", s.handleCompleteTask)
			r.Post("/milestones", s.handleAddMilestone)
			r.Post("/collaborate", s.handleCollaborate)
			r.Get("/collaboration", s.handleRounds)
			r.Get("/collaboration/stats", s.handleCollaborationStats)
			r.Get("/contributions", s.handleContributions)
			if s.events != nil {
				r.Get("/events", s.handleEvents)
			}
		})
	})

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

// requestLogger logs one line per request, at a level chosen by the
// response status.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			case r.URL.Path == "/healthz":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, http.StatusText(status),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes_written", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := cerr.From(err)
	status := ce.Code.HTTPCode()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	msg := ce.Msg
	if ce.Code == cerr.Unknown {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: ce.Code.String(), Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid json body: "+err.Error(), err)
	}
	return nil
}
