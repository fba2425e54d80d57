// Package app wires configuration into a running collaboration service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"collabbot/internal/collab"
	"collabbot/internal/config"
	"collabbot/internal/domain"
	"collabbot/internal/httpapi"
	"collabbot/internal/llm"
	"collabbot/internal/messaging/inproc"
	"collabbot/internal/project"
	"collabbot/internal/registry"
	"collabbot/internal/storage"
	sqlitestore "collabbot/internal/store/sqlite"
)

type App struct {
	Registry *registry.Registry
	Projects *project.Store
	Router   *llm.Router
	Ledger   *collab.Ledger
	Engine   *collab.Engine
	Events   *inproc.Bus

	logger  *slog.Logger
	mu      sync.RWMutex
	cfg     config.Config
	closers []func() error
}

// New builds every component described by cfg. Close releases them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.UnknownKeys) > 0 {
		logger.Warn("ignoring unknown config keys", "path", cfg.Path, "keys", cfg.UnknownKeys)
	}
	agents, err := cfg.ResolveAgents()
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(agents...)
	if err != nil {
		return nil, fmt.Errorf("build agent registry: %w", err)
	}

	a := &App{
		Registry: reg,
		logger:   logger,
		cfg:      cfg,
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	codec, err := project.CodecFor(cfg.Storage.Format)
	if err != nil {
		return nil, err
	}
	backend, sink, err := a.openBackend(ctx, cfg.Storage, codec)
	if err != nil {
		return nil, err
	}

	a.Ledger = collab.NewLedger(sink, logger)
	if source, isSource := sink.(collab.Source); isSource {
		if err := a.Ledger.Restore(ctx, source); err != nil {
			return nil, fmt.Errorf("restore contributions: %w", err)
		}
	}

	a.Projects, err = project.NewStore(ctx, backend, codec, project.Config{
		MaxAgentsPerProject:   cfg.Collaboration.MaxAgentsPerProject,
		MaxMessagesPerProject: cfg.Collaboration.MaxMessagesPerProject,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}

	clients, err := buildClients(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Router = llm.NewRouter(cfg.Collaboration.QueryTimeout(), logger)
	a.Router.Replace(clients)

	a.Events = inproc.New(0)
	a.Engine = collab.New(reg, a.Projects, a.Router, a.Ledger, collab.Config{
		ContextMessages:     cfg.Collaboration.ContextMessages,
		MessageTruncate:     cfg.Collaboration.MessageTruncate,
		DefaultConfidence:   cfg.Collaboration.DefaultConfidence,
		MaxConcurrency:      cfg.Collaboration.MaxConcurrency,
		SynthesisAgent:      cfg.Collaboration.SynthesisAgent,
		SynthesisPreference: cfg.Collaboration.SynthesisPreference,
		Events:              a.Events,
	}, logger)

	logger.Info("collabbot ready",
		"agents", reg.Names(),
		"engines", a.Router.Engines(),
		"backend", cfg.Storage.Backend,
		"projects", len(a.Projects.List()),
	)
	ok = true
	return a, nil
}

func (a *App) openBackend(ctx context.Context, cfg config.StorageConfig, codec project.Codec) (project.Backend, collab.Sink, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return db, db, nil
	case "file", "":
		st, err := openStorage(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return project.NewFileBackend(st, codec.Ext()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case "s3":
		return storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	case "local", "":
		return storage.NewLocalStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// buildClients gives every provider with an API key a chat client. The
// echo engine is always available.
func buildClients(cfg config.Config, logger *slog.Logger) (map[domain.Engine]llm.Client, error) {
	clients := map[domain.Engine]llm.Client{domain.EngineEcho: llm.EchoClient{}}
	for engine, available := range cfg.AvailableServices() {
		if !available {
			continue
		}
		provider := cfg.Provider(engine)
		client, err := llm.NewChatClient(llm.ChatClientConfig{
			Engine:   engine,
			Endpoint: provider.BaseURL,
			APIKey:   provider.APIKey,
			Timeout:  cfg.Collaboration.QueryTimeout(),
			Retries:  provider.Retries,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure %s client: %w", engine, err)
		}
		clients[engine] = client
	}
	return clients, nil
}

// Handler returns the HTTP API over the app's components.
func (a *App) Handler() http.Handler {
	return httpapi.New(httpapi.Config{
		Projects:      a.Projects,
		Collaboration: a.Engine,
		Agents:        a.Registry,
		Events:        a.Events,
		Summary:       a.Summary,
		CORSOrigins:   a.Config().Server.CORSOrigins,
		Logger:        a.logger,
	})
}

func (a *App) Config() config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) Summary() config.Summary {
	return a.Config().Summary()
}

// Reload re-reads the configuration at path and swaps in its agents,
// provider clients and synthesis settings. Engines whose key was removed
// lose their client. Storage settings are only read at start-up.
func (a *App) Reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	agents, err := cfg.ResolveAgents()
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return errors.New("reloaded config has no usable agents")
	}
	if len(cfg.UnknownKeys) > 0 {
		a.logger.Warn("ignoring unknown config keys", "path", cfg.Path, "keys", cfg.UnknownKeys)
	}
	clients, err := buildClients(cfg, a.logger)
	if err != nil {
		return err
	}
	if err := a.Registry.Replace(agents); err != nil {
		return err
	}
	a.Router.Replace(clients)
	a.Engine.SetSynthesis(cfg.Collaboration.SynthesisAgent, cfg.Collaboration.SynthesisPreference)

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.logger.Info("configuration reloaded", "path", cfg.Path, "agents", a.Registry.Names())
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
