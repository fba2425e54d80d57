package collab

import (
	"fmt"
	"strings"

	"collabbot/internal/domain"
)

const NoContributionsMessage = "No agent contributions available"

type agentOutput struct {
	agent string
	text  string
}

type priorResult struct {
	title  string
	result string
}

// projectContext renders the project header and the tail of its
// conversation history.
func projectContext(p domain.Project, messages, truncate int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nDescription: %s\n\n", p.Name, p.Description)
	b.WriteString("Recent conversation:\n")

	history := p.ConversationHistory
	if messages >= 0 && len(history) > messages {
		history = history[len(history)-messages:]
	}
	for _, m := range history {
		sender := m.Sender
		if sender == "" {
			sender = "Unknown"
		}
		fmt.Fprintf(&b, "%s: %s...\n", sender, truncateRunes(m.Content, truncate))
	}
	return b.String()
}

func taskPrompt(task domain.Task, agent domain.Agent, background string, prior []priorResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s\n\n", background)
	fmt.Fprintf(&b, "Task: %s\nDescription: %s\n\n", task.Title, task.Description)
	if len(prior) > 0 {
		b.WriteString("Results from prerequisite tasks:\n")
		for _, r := range prior {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", r.title, r.result)
		}
	}
	fmt.Fprintf(&b, "As %s (%s), please provide your expertise and analysis for this task.\n", agent.Name, agent.Role)
	fmt.Fprintf(&b, "Consider your specific role: %s\n\n", agent.Description)
	b.WriteString("Please provide a comprehensive response that leverages your unique capabilities.")
	return b.String()
}

// combineTaskResults merges several agents' outputs for one task, in
// assignment order.
func combineTaskResults(title string, outputs []agentOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤝 Collaborative Results for: %s\n\n", title)
	for _, o := range outputs {
		fmt.Fprintf(&b, "**%s**:\n%s\n\n", o.agent, o.text)
	}
	b.WriteString("---\n")
	b.WriteString("**Synthesis**: This collaborative effort combines multiple perspectives to provide a comprehensive solution.")
	return b.String()
}

func synthesisPrompt(p domain.Project, request string, contributions []domain.AgentContribution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\nUser Request: %s\n\nAgent Contributions:\n", p.Name, request)
	for _, c := range contributions {
		fmt.Fprintf(&b, "\n%s (%s):\n%s\n", c.AgentName, c.Role, c.Contribution)
	}
	b.WriteString("\nPlease synthesize these contributions into a coherent, comprehensive response.")
	return b.String()
}

// concatenate is the synthesis used when no synthesis agent can answer.
func concatenate(contributions []domain.AgentContribution) string {
	if len(contributions) == 0 {
		return NoContributionsMessage
	}
	var b strings.Builder
	b.WriteString("🤝 Collaborative AI Response\n\n")
	for _, c := range contributions {
		fmt.Fprintf(&b, "**%s** (%s):\n%s\n\n", c.AgentName, c.Role, c.Contribution)
	}
	b.WriteString("---\n")
	b.WriteString("This response combines insights from multiple AI agents, each contributing their unique expertise and perspective to provide a comprehensive solution.")
	return b.String()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
