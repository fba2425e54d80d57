package domain

import "time"

// Clone returns a deep copy so callers can mutate the result freely.
func (p Project) Clone() Project {
	out := p
	out.AIAgents = cloneStrings(p.AIAgents)
	out.Tags = cloneStrings(p.Tags)
	out.ConversationHistory = append(make([]Message, 0, len(p.ConversationHistory)), p.ConversationHistory...)
	out.Tasks = make([]Task, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		out.Tasks = append(out.Tasks, t.Clone())
	}
	out.Milestones = make([]Milestone, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		out.Milestones = append(out.Milestones, m.Clone())
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	out.AssignedAgents = cloneStrings(t.AssignedAgents)
	out.Dependencies = cloneStrings(t.Dependencies)
	out.StartedAt = cloneTime(t.StartedAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	if t.AgentResults != nil {
		out.AgentResults = make(map[string]string, len(t.AgentResults))
		for k, v := range t.AgentResults {
			out.AgentResults[k] = v
		}
	}
	return out
}

func (m Milestone) Clone() Milestone {
	out := m
	out.Tasks = cloneStrings(m.Tasks)
	return out
}

func cloneStrings(in []string) []string {
	return append(make([]string, 0, len(in)), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
