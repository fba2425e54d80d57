package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"collabbot/internal/domain"
)

// round holds the live task graph of one collaboration round.
type round struct {
	id        string
	projectID string
	request   string
	started   time.Time

	mu        sync.Mutex
	tasks     []domain.Task
	completed *time.Time
}

func newRound(id, projectID, request string, tasks []domain.Task, started time.Time) *round {
	return &round{
		id:        id,
		projectID: projectID,
		request:   request,
		started:   started,
		tasks:     tasks,
	}
}

func (r *round) task(i int) domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[i].Clone()
}

func (r *round) update(i int, fn func(*domain.Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.tasks[i])
}

func (r *round) snapshot() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Task, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (r *round) finish(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = &at
}

func (r *round) view() RoundView {
	tasks := r.snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	v := RoundView{
		ID:        r.id,
		ProjectID: r.projectID,
		Request:   r.request,
		Running:   r.completed == nil,
		Tasks:     tasks,
		StartedAt: r.started,
	}
	if r.completed != nil {
		at := *r.completed
		v.CompletedAt = &at
	}
	return v
}

func validateGraph(tasks []domain.Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return fmt.Errorf("task graph contains a task without id")
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("task graph contains duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	if hasCycle(tasks) {
		return fmt.Errorf("task graph contains a dependency cycle")
	}
	return nil
}

// runGraph executes the tasks without dependencies concurrently, waits for
// all of them, then runs the dependent tasks one at a time in graph order.
// A dependent task runs only when every dependency produced a result.
func (e *Engine) runGraph(ctx context.Context, r *round, p domain.Project) (map[string]string, error) {
	tasks := r.snapshot()
	if err := validateGraph(tasks); err != nil {
		return nil, err
	}

	var independent, dependent []int
	for i, t := range tasks {
		if len(t.Dependencies) == 0 {
			independent = append(independent, i)
		} else {
			dependent = append(dependent, i)
		}
	}

	background := projectContext(p, e.cfg.ContextMessages, e.cfg.MessageTruncate)
	results := make(map[string]string, len(tasks))
	var resultsMu sync.Mutex

	workers := pool.New().WithMaxGoroutines(e.cfg.MaxConcurrency)
	for _, i := range independent {
		workers.Go(func() {
			if out, ok := e.runTask(ctx, r, i, p.ID, background, nil); ok {
				resultsMu.Lock()
				results[tasks[i].ID] = out
				resultsMu.Unlock()
			}
		})
	}
	workers.Wait()

	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}
	for _, i := range dependent {
		t := tasks[i]
		prior := make([]priorResult, 0, len(t.Dependencies))
		ready := true
		for _, dep := range t.Dependencies {
			out, ok := results[dep]
			if !ok {
				ready = false
				break
			}
			prior = append(prior, priorResult{title: titles[dep], result: out})
		}
		if !ready {
			e.logger.Warn("skipping task with unfinished dependencies",
				"project_id", p.ID,
				"round_id", r.id,
				"task_id", t.ID,
			)
			continue
		}
		if out, ok := e.runTask(ctx, r, i, p.ID, background, prior); ok {
			results[t.ID] = out
		}
	}
	return results, nil
}

// runTask queries every resolvable assigned agent in assignment order and
// records each answer in the ledger. It reports false when no agent
// answered, leaving the task failed.
func (e *Engine) runTask(ctx context.Context, r *round, i int, projectID, background string, prior []priorResult) (string, bool) {
	started := e.cfg.Now()
	r.update(i, func(t *domain.Task) {
		t.Status = domain.TaskStatusInProgress
		t.StartedAt = &started
	})
	task := r.task(i)
	e.emitTask(r, task.ID, domain.TaskStatusInProgress, started)

	outputs := make([]agentOutput, 0, len(task.AssignedAgents))
	for _, name := range task.AssignedAgents {
		agent, ok := e.agents.Resolve(name)
		if !ok {
			e.logger.Warn("task assigned to unknown agent", "project_id", projectID, "task_id", task.ID, "agent", name)
			continue
		}
		text, err := e.querier.Query(ctx, agent, taskPrompt(task, agent, background, prior))
		if err != nil {
			e.logger.Warn("agent query failed",
				"project_id", projectID,
				"task_id", task.ID,
				"agent", name,
				"error", err,
			)
			continue
		}
		outputs = append(outputs, agentOutput{agent: name, text: text})
		e.ledger.Append(ctx, projectID, domain.AgentContribution{
			AgentName:    agent.Name,
			Role:         agent.Role,
			Contribution: text,
			Confidence:   e.cfg.DefaultConfidence,
			Timestamp:    e.cfg.Now(),
			Metadata: map[string]string{
				"round_id": r.id,
				"task_id":  task.ID,
				"engine":   string(agent.Engine),
			},
		})
		e.emit(domain.RoundEvent{
			Kind:      domain.RoundEventContribution,
			ProjectID: projectID,
			RoundID:   r.id,
			TaskID:    task.ID,
			Agent:     agent.Name,
			Message:   text,
		})
	}

	finished := e.cfg.Now()
	if len(outputs) == 0 {
		r.update(i, func(t *domain.Task) {
			t.Status = domain.TaskStatusFailed
			t.CompletedAt = &finished
		})
		e.logger.Warn("task produced no agent output", "project_id", projectID, "task_id", task.ID)
		e.emitTask(r, task.ID, domain.TaskStatusFailed, finished)
		return "", false
	}

	result := outputs[0].text
	if len(outputs) > 1 {
		result = combineTaskResults(task.Title, outputs)
	}
	agentResults := make(map[string]string, len(outputs))
	for _, o := range outputs {
		agentResults[o.agent] = o.text
	}
	r.update(i, func(t *domain.Task) {
		t.Status = domain.TaskStatusCompleted
		t.CompletedAt = &finished
		t.Result = result
		t.AgentResults = agentResults
	})
	e.emitTask(r, task.ID, domain.TaskStatusCompleted, finished)
	return result, true
}

func (e *Engine) emitTask(r *round, taskID string, status domain.TaskStatus, at time.Time) {
	e.emit(domain.RoundEvent{
		Kind:       domain.RoundEventTaskUpdated,
		ProjectID:  r.projectID,
		RoundID:    r.id,
		TaskID:     taskID,
		TaskStatus: status,
		Time:       at,
	})
}
