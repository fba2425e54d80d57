package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"collabbot/internal/collab"
	"collabbot/internal/domain"
)

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func statusText(status string) string {
	switch status {
	case string(domain.ProjectStatusActive), string(domain.TaskStatusInProgress):
		return color.CyanString(status)
	case string(domain.TaskStatusCompleted):
		return color.GreenString(status)
	case string(domain.TaskStatusFailed):
		return color.RedString(status)
	case string(domain.ProjectStatusArchived), string(domain.TaskStatusPending):
		return color.YellowString(status)
	default:
		return status
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func renderAgents(w io.Writer, agents []domain.Agent) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Name", "Role", "Engine", "Model"})
	for _, a := range agents {
		tw.AppendRow(table.Row{a.Name, a.Role, a.Engine, a.Model.Name})
	}
	tw.Render()
}

func renderProjects(w io.Writer, projects []domain.Project) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Owner", "Status", "Agents", "Tasks", "Updated"})
	for _, p := range projects {
		tw.AppendRow(table.Row{
			p.ID, p.Name, p.CreatedBy, statusText(string(p.Status)),
			strings.Join(p.AIAgents, ", "), len(p.Tasks), formatTime(p.LastUpdated),
		})
	}
	tw.Render()
}

func renderProject(w io.Writer, p domain.Project) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s", p.Name)
	fmt.Fprintf(w, "  (%s)  %s\n", p.ID, statusText(string(p.Status)))
	if p.Description != "" {
		fmt.Fprintln(w, p.Description)
	}
	fmt.Fprintf(w, "owner: %s  agents: %s  created: %s\n", p.CreatedBy, strings.Join(p.AIAgents, ", "), formatTime(p.CreatedAt))
	if len(p.Tags) > 0 {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(p.Tags, ", "))
	}

	if len(p.Tasks) > 0 {
		fmt.Fprintln(w)
		renderTasks(w, p.Tasks)
	}
	if len(p.Milestones) > 0 {
		fmt.Fprintln(w)
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Milestone", "Due", "Status", "Tasks"})
		for _, m := range p.Milestones {
			tw.AppendRow(table.Row{m.Title, formatTime(m.DueDate), statusText(string(m.Status)), len(m.Tasks)})
		}
		tw.Render()
	}
	if n := len(p.ConversationHistory); n > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "Recent conversation")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, m := range p.ConversationHistory[start:] {
			fmt.Fprintf(w, "%s %s: %s\n", color.HiBlackString(formatTime(m.Timestamp)), m.Sender, firstLine(m.Content, 100))
		}
	}
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Task", "Title", "Status", "Priority", "Agents"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, statusText(string(t.Status)), t.Priority, strings.Join(t.AssignedAgents, ", ")})
	}
	tw.Render()
}

func renderProjectStats(w io.Writer, s domain.ProjectStats, c domain.CollaborationStats) {
	tw := newTable(w)
	tw.AppendRows([]table.Row{
		{"Tasks", fmt.Sprintf("%d/%d", s.CompletedTasks, s.TotalTasks)},
		{"Completion", fmt.Sprintf("%.1f%%", s.CompletionRate)},
		{"Messages", s.TotalMessages},
		{"Agents", s.AgentCount},
		{"Days active", s.DaysActive},
		{"Contributions", c.TotalContributions},
		{"Contributing agents", c.UniqueAgents},
		{"Collaboration time", c.Duration.Round(time.Second)},
	})
	tw.Render()

	if len(c.AgentStats) == 0 {
		return
	}
	names := make([]string, 0, len(c.AgentStats))
	for name := range c.AgentStats {
		names = append(names, name)
	}
	sort.Strings(names)
	at := newTable(w)
	at.AppendHeader(table.Row{"Agent", "Contributions", "Avg confidence", "Roles"})
	for _, name := range names {
		a := c.AgentStats[name]
		at.AppendRow(table.Row{name, a.Contributions, fmt.Sprintf("%.2f", a.AvgConfidence), strings.Join(a.Roles, ", ")})
	}
	at.Render()
}

func renderRound(w io.Writer, r collab.Round) {
	renderTasks(w, r.Tasks)
	fmt.Fprintln(w)
	header := "Response"
	if r.SynthesizedBy != "" {
		header += " (synthesized by " + r.SynthesizedBy + ")"
	}
	color.New(color.Bold).Fprintln(w, header)
	fmt.Fprintln(w, r.Response)
}

func firstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
