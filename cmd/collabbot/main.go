package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"collabbot/internal/app"
	"collabbot/internal/config"
	"collabbot/internal/logutil"
)

type rootOptions struct {
	configPath string
	jsonOut    bool
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "collabbot",
		Short: "Multi-agent collaboration over shared projects",
		Long: `collabbot keeps projects with a conversation history, tasks and milestones,
and answers requests by letting several AI agents analyse them in parallel
before one response is synthesized from their contributions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.toml (default: ~/.collabbot/config.toml)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "output JSON")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(agentsCmd(opts))
	root.AddCommand(projectsCmd(opts))
	root.AddCommand(tasksCmd(opts))
	root.AddCommand(milestonesCmd(opts))
	root.AddCommand(collaborateCmd(opts))
	return root
}

func (o *rootOptions) loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger, err := logutil.New(logutil.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// withApp runs fn against a freshly wired app. One-shot commands log at warn
// unless a level was asked for.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	if o.logLevel == "" {
		o.logLevel = "warn"
	}
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()
	return fn(cmd.Context(), a)
}

func (o *rootOptions) print(w io.Writer, v any, render func(io.Writer)) error {
	if o.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	render(w)
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
