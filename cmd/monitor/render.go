package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"collabbot/internal/collab"
	"collabbot/internal/domain"
)

func renderProjectsTable(table *tview.Table, projects []domain.Project, selectedID string) {
	table.Clear()
	headers := []string{"Project", "Name", "Status", "Agents", "Tasks", "Updated"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, p := range projects {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(p.ID)))
		table.SetCell(row, 1, tview.NewTableCell(trimLine(p.Name, 32)))
		table.SetCell(row, 2, tview.NewTableCell(string(p.Status)).SetTextColor(statusColor(string(p.Status))))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", len(p.AIAgents))))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%d", len(p.Tasks))))
		table.SetCell(row, 5, tview.NewTableCell(p.LastUpdated.Local().Format("15:04:05")))
		if p.ID == selectedID {
			table.Select(row, 0)
		}
	}
}

func statusColor(status string) tcell.Color {
	switch status {
	// Project, task and milestone statuses share "completed".
	case string(domain.TaskStatusCompleted):
		return tcell.ColorGreen
	case string(domain.TaskStatusFailed):
		return tcell.ColorRed
	case string(domain.TaskStatusInProgress), string(domain.ProjectStatusActive):
		return tcell.ColorAqua
	case string(domain.ProjectStatusArchived):
		return tcell.ColorGray
	default:
		return tcell.ColorYellow
	}
}

func statusTag(status string) string {
	switch status {
	case string(domain.TaskStatusCompleted):
		return "[green]" + status + "[-]"
	case string(domain.TaskStatusFailed):
		return "[red]" + status + "[-]"
	case string(domain.TaskStatusInProgress):
		return "[aqua]" + status + "[-]"
	default:
		return "[yellow]" + status + "[-]"
	}
}

func renderDetails(p domain.Project, stats domain.ProjectStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-]  %s  owner=%s\n", tview.Escape(p.Name), statusTag(string(p.Status)), tview.Escape(p.CreatedBy))
	if p.Description != "" {
		b.WriteString(tview.Escape(trimLine(p.Description, 160)) + "\n")
	}
	fmt.Fprintf(&b, "agents: %s\n", tview.Escape(strings.Join(p.AIAgents, ", ")))
	fmt.Fprintf(&b, "tasks %d/%d (%.1f%%)  messages=%d  days active=%d\n",
		stats.CompletedTasks, stats.TotalTasks, stats.CompletionRate, stats.TotalMessages, stats.DaysActive)

	if len(p.Tasks) > 0 {
		b.WriteString("\n[::b]Tasks[::-]\n")
		for _, t := range p.Tasks {
			fmt.Fprintf(&b, "  %-11s p%d %s", statusTag(string(t.Status)), t.Priority, tview.Escape(trimLine(t.Title, 60)))
			if len(t.AssignedAgents) > 0 {
				fmt.Fprintf(&b, "  (%s)", tview.Escape(strings.Join(t.AssignedAgents, ", ")))
			}
			b.WriteString("\n")
		}
	}
	if len(p.Milestones) > 0 {
		b.WriteString("\n[::b]Milestones[::-]\n")
		for _, m := range p.Milestones {
			fmt.Fprintf(&b, "  %s  due %s  %s\n", statusTag(string(m.Status)), m.DueDate.Format("2006-01-02"), tview.Escape(m.Title))
		}
	}
	if n := len(p.ConversationHistory); n > 0 {
		b.WriteString("\n[::b]Conversation[::-]\n")
		start := n - 6
		if start < 0 {
			start = 0
		}
		for _, m := range p.ConversationHistory[start:] {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"),
				tview.Escape(m.Sender), tview.Escape(trimLine(flatten(m.Content), 100)))
		}
	}
	return b.String()
}

func renderContributions(items []domain.AgentContribution) string {
	if len(items) == 0 {
		return "No contributions"
	}
	var b strings.Builder
	start := len(items) - 50
	if start < 0 {
		start = 0
	}
	for _, c := range items[start:] {
		fmt.Fprintf(&b, "[%s] %s (%s) conf=%.2f",
			c.Timestamp.Local().Format("15:04:05"), tview.Escape(c.AgentName), tview.Escape(c.Role), c.Confidence)
		if task := c.Metadata["task_id"]; task != "" {
			fmt.Fprintf(&b, " task=%s", tview.Escape(task))
		}
		b.WriteString("\n  " + tview.Escape(trimLine(flatten(c.Contribution), 120)) + "\n")
	}
	return b.String()
}

func renderCollaboration(stats domain.CollaborationStats, rounds []collab.RoundView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "contributions=%d agents=%d duration=%s\n",
		stats.TotalContributions, stats.UniqueAgents, stats.Duration.Round(time.Second))

	names := make([]string, 0, len(stats.AgentStats))
	for name := range stats.AgentStats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats.AgentStats[name]
		fmt.Fprintf(&b, "  %-16s n=%d avg=%.2f roles=%s\n",
			tview.Escape(name), s.Contributions, s.AvgConfidence, tview.Escape(strings.Join(s.Roles, ", ")))
	}

	for _, r := range rounds {
		state := "[green]done[-]"
		if r.Running {
			state = "[aqua]running[-]"
		}
		done := 0
		for _, t := range r.Tasks {
			if t.Status == domain.TaskStatusCompleted {
				done++
			}
		}
		fmt.Fprintf(&b, "\nround %s %s %d/%d tasks\n  %s\n",
			shortID(r.ID), state, done, len(r.Tasks), tview.Escape(trimLine(flatten(r.Request), 100)))
	}
	return b.String()
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimLine(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
