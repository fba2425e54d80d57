package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"collabbot/internal/app"
	"collabbot/internal/collab"
	"collabbot/internal/domain"
	"collabbot/internal/project"
)

func agentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				agents := a.Registry.All()
				return opts.print(cmd.OutOrStdout(), agents, func(w io.Writer) { renderAgents(w, agents) })
			})
		},
	}
}

func projectsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "projects", Short: "Manage projects"}
	cmd.AddCommand(projectsListCmd(opts))
	cmd.AddCommand(projectsCreateCmd(opts))
	cmd.AddCommand(projectsShowCmd(opts))
	cmd.AddCommand(projectsStatsCmd(opts))
	cmd.AddCommand(projectsArchiveCmd(opts))
	return cmd
}

func projectsListCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				projects := a.Projects.List()
				if owner != "" {
					projects = a.Projects.ListForOwner(owner)
				}
				return opts.print(cmd.OutOrStdout(), projects, func(w io.Writer) { renderProjects(w, projects) })
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only projects created by this user")
	return cmd
}

func projectsCreateCmd(opts *rootOptions) *cobra.Command {
	var in project.CreateInput
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(in.Agents) == 0 {
					in.Agents = a.Registry.Names()
					if limit := a.Config().Collaboration.MaxAgentsPerProject; len(in.Agents) > limit {
						in.Agents = in.Agents[:limit]
					}
				}
				p, err := a.Projects.Create(ctx, in)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), p, func(w io.Writer) { renderProject(w, p) })
			})
		},
	}
	cmd.Flags().StringVar(&in.Owner, "owner", currentUser(), "project owner")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "project description")
	cmd.Flags().StringSliceVarP(&in.Agents, "agents", "a", nil, "agents taking part (default: every configured agent)")
	cmd.Flags().StringSliceVar(&in.Tags, "tags", nil, "project tags")
	return cmd
}

func projectsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROJECT_ID",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Projects.Get(args[0])
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), p, func(w io.Writer) { renderProject(w, p) })
			})
		},
	}
}

func projectsStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats PROJECT_ID",
		Short: "Show project and collaboration statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Projects.Stats(args[0])
				if err != nil {
					return err
				}
				collabStats := a.Engine.Stats(args[0])
				out := struct {
					Project       domain.ProjectStats       `json:"project"`
					Collaboration domain.CollaborationStats `json:"collaboration"`
				}{stats, collabStats}
				return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) { renderProjectStats(w, stats, collabStats) })
			})
		},
	}
}

func projectsArchiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive PROJECT_ID",
		Short: "Archive a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				status := domain.ProjectStatusArchived
				p, err := a.Projects.Update(ctx, args[0], project.Update{Status: &status})
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), p, func(w io.Writer) { renderProject(w, p) })
			})
		},
	}
}

func tasksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Short: "Manage project tasks"}
	cmd.AddCommand(tasksAddCmd(opts))
	cmd.AddCommand(tasksCompleteCmd(opts))
	return cmd
}

func tasksAddCmd(opts *rootOptions) *cobra.Command {
	var in project.TaskInput
	cmd := &cobra.Command{
		Use:   "add PROJECT_ID TITLE",
		Short: "Add a task to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[1]
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				task, err := a.Projects.AddTask(ctx, args[0], in)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), task, func(w io.Writer) { renderTasks(w, []domain.Task{task}) })
			})
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "task description")
	cmd.Flags().StringSliceVarP(&in.Agents, "agents", "a", nil, "assigned agents")
	cmd.Flags().IntVarP(&in.Priority, "priority", "p", 1, "priority from 1 to 5")
	cmd.Flags().IntVar(&in.EstimatedDuration, "estimate", 0, "estimated duration in minutes")
	return cmd
}

func tasksCompleteCmd(opts *rootOptions) *cobra.Command {
	var result string
	cmd := &cobra.Command{
		Use:   "complete PROJECT_ID TASK_ID",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Projects.CompleteTask(ctx, args[0], args[1], result); err != nil {
					return err
				}
				out := map[string]string{"status": "completed", "task_id": args[1]}
				return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
					fmt.Fprintf(w, "task %s %s\n", args[1], statusText(string(domain.TaskStatusCompleted)))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&result, "result", "r", "", "task result")
	return cmd
}

func milestonesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "milestones", Short: "Manage project milestones"}
	cmd.AddCommand(milestonesAddCmd(opts))
	return cmd
}

func milestonesAddCmd(opts *rootOptions) *cobra.Command {
	var in project.MilestoneInput
	var due string
	cmd := &cobra.Command{
		Use:   "add PROJECT_ID TITLE",
		Short: "Add a milestone to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Title = args[1]
			if due != "" {
				t, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("invalid --due %q: want YYYY-MM-DD", due)
				}
				in.DueDate = t
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Projects.AddMilestone(ctx, args[0], in)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), m, func(w io.Writer) {
					fmt.Fprintf(w, "milestone %s %q due %s\n", m.ID, m.Title, formatTime(m.DueDate))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "milestone description")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&in.Tasks, "tasks", nil, "task ids covered by the milestone")
	return cmd
}

func collaborateCmd(opts *rootOptions) *cobra.Command {
	var sender string
	cmd := &cobra.Command{
		Use:   "collaborate PROJECT_ID REQUEST",
		Short: "Run a collaboration round on a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				round, err := a.Engine.StartCollaboration(ctx, collab.RoundInput{
					ProjectID: args[0],
					Sender:    sender,
					Request:   args[1],
				})
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), round, func(w io.Writer) { renderRound(w, round) })
			})
		},
	}
	cmd.Flags().StringVar(&sender, "sender", currentUser(), "name recorded as the request sender")
	return cmd
}
