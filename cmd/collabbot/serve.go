package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"collabbot/internal/app"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           a.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			if watch {
				if cfg.Path == "" {
					logger.Warn("no config file loaded, --watch ignored")
				} else {
					go func() {
						err := app.WatchConfig(ctx, cfg.Path, logger, func() {
							if err := a.Reload(cfg.Path); err != nil {
								logger.Error("config reload failed", "error", err)
							}
						})
						if err != nil {
							logger.Error("config watcher stopped", "error", err)
						}
					}()
				}
			}

			shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("collabbot listening", "addr", addr, "config", cfg.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload agents when the config file changes")
	return cmd
}
