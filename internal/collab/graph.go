package collab

import (
	"fmt"
	"time"

	"collabbot/internal/domain"
)

const (
	analysisPriority  = 3
	analysisDuration  = 2
	synthesisPriority = 5
	synthesisDuration = 3

	SynthesisTaskTitle = "Collaborative Synthesis"
)

// AgentResolver looks agents up by name.
type AgentResolver interface {
	Resolve(name string) (domain.Agent, bool)
}

// BuildTaskGraph plans one round: an analysis task for every project agent
// the resolver knows, then a synthesis task assigned to all project agents
// that depends on every analysis task. Task ids are prefixed with roundID.
func BuildTaskGraph(roundID string, agentNames []string, agents AgentResolver, now time.Time) []domain.Task {
	tasks := make([]domain.Task, 0, len(agentNames)+1)
	for _, name := range agentNames {
		agent, ok := agents.Resolve(name)
		if !ok {
			continue
		}
		tasks = append(tasks, domain.Task{
			ID:                taskID(roundID, len(tasks)),
			Title:             fmt.Sprintf("%s Analysis", agent.Name),
			Description:       fmt.Sprintf("Analyze the request from the perspective of %s", agent.Role),
			AssignedAgents:    []string{agent.Name},
			Dependencies:      []string{},
			Status:            domain.TaskStatusPending,
			Priority:          analysisPriority,
			EstimatedDuration: analysisDuration,
			CreatedAt:         now,
		})
	}

	deps := make([]string, 0, len(tasks))
	for _, t := range tasks {
		deps = append(deps, t.ID)
	}
	tasks = append(tasks, domain.Task{
		ID:                taskID(roundID, len(tasks)),
		Title:             SynthesisTaskTitle,
		Description:       "Combine all agent contributions into a unified response",
		AssignedAgents:    append([]string{}, agentNames...),
		Dependencies:      deps,
		Status:            domain.TaskStatusPending,
		Priority:          synthesisPriority,
		EstimatedDuration: synthesisDuration,
		CreatedAt:         now,
	})
	return tasks
}

func taskID(roundID string, n int) string {
	if roundID == "" {
		return fmt.Sprintf("task_%d", n)
	}
	return fmt.Sprintf("%s/task_%d", roundID, n)
}

// hasCycle reports whether the dependency edges of tasks form a cycle.
func hasCycle(tasks []domain.Task) bool {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.Dependencies
	}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(tasks))
	var visit func(id string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return false
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if _, ok := deps[dep]; !ok {
				continue
			}
			if visit(dep) {
				return true
			}
		}
		state[id] = done
		return false
	}
	for _, t := range tasks {
		if visit(t.ID) {
			return true
		}
	}
	return false
}
