package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"collabbot/internal/domain"
)

type Config struct {
	Server        ServerConfig              `toml:"server"`
	Logging       LoggingConfig             `toml:"logging"`
	Storage       StorageConfig             `toml:"storage"`
	Collaboration CollaborationConfig       `toml:"collaboration"`
	Defaults      ModelDefaults             `toml:"defaults"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Agents        []AgentConfig             `toml:"agents"`
	Path          string                    `toml:"-"`
	UnknownKeys   []string                  `toml:"-"` // file keys matching no setting
}

type ServerConfig struct {
	Addr                   string   `toml:"addr"`
	CORSOrigins            []string `toml:"cors_origins"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	AddSource bool   `toml:"add_source"`
}

type StorageConfig struct {
	// Backend is "file" (one record per project on Driver) or "sqlite".
	Backend    string `toml:"backend"`
	Driver     string `toml:"driver"`
	Path       string `toml:"path"`
	Format     string `toml:"format"`
	SQLitePath string `toml:"sqlite_path"`
	S3Bucket   string `toml:"s3_bucket"`
	S3Prefix   string `toml:"s3_prefix"`
	S3Region   string `toml:"s3_region"`
}

type CollaborationConfig struct {
	QueryTimeoutSeconds   int      `toml:"query_timeout_seconds" json:"query_timeout_seconds"`
	ContextMessages       int      `toml:"context_messages" json:"context_messages"`
	MessageTruncate       int      `toml:"message_truncate" json:"message_truncate"`
	DefaultConfidence     float64  `toml:"default_confidence" json:"default_confidence"`
	MaxConcurrency        int      `toml:"max_concurrency" json:"max_concurrency"`
	SynthesisAgent        string   `toml:"synthesis_agent" json:"synthesis_agent"`
	SynthesisPreference   []string `toml:"synthesis_preference" json:"synthesis_preference"`
	MaxAgentsPerProject   int      `toml:"max_agents_per_project" json:"max_agents_per_project"`
	MaxMessagesPerProject int      `toml:"max_messages_per_project" json:"max_messages_per_project"`
}

func (c CollaborationConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

type ModelDefaults struct {
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
}

type ProviderConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Retries int    `toml:"retries"`
}

type AgentConfig struct {
	Name        string   `toml:"name"`
	Role        string   `toml:"role"`
	Description string   `toml:"description"`
	Engine      string   `toml:"engine"`
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
}

// Load reads the TOML file at path, applies environment overrides and fills
// defaults. A missing file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	explicit := strings.TrimSpace(path) != ""
	resolved := path
	if !explicit {
		resolved = defaultConfigPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	bytes, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		meta, err := toml.Decode(string(bytes), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
		for _, key := range meta.Undecoded() {
			cfg.UnknownKeys = append(cfg.UnknownKeys, key.String())
		}
		cfg.Path = resolved
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg = cfg.withDefaults()
	return cfg, nil
}

// Parse decodes TOML text without touching the filesystem or environment.
func Parse(text string) (Config, error) {
	var cfg Config
	if _, err := toml.Decode(text, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Server.Addr == "" {
		c.Server.Addr = ":10000"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "."
	}
	if c.Storage.Format == "" {
		c.Storage.Format = "json"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "collabbot.db"
	}
	if c.Storage.S3Prefix == "" {
		c.Storage.S3Prefix = "collabbot/"
	}
	if c.Storage.S3Region == "" {
		c.Storage.S3Region = "us-east-1"
	}
	if c.Collaboration.QueryTimeoutSeconds <= 0 {
		c.Collaboration.QueryTimeoutSeconds = 300
	}
	if c.Collaboration.ContextMessages <= 0 {
		c.Collaboration.ContextMessages = 5
	}
	if c.Collaboration.MessageTruncate <= 0 {
		c.Collaboration.MessageTruncate = 100
	}
	if c.Collaboration.DefaultConfidence <= 0 || c.Collaboration.DefaultConfidence > 1 {
		c.Collaboration.DefaultConfidence = 0.8
	}
	if c.Collaboration.MaxConcurrency <= 0 {
		c.Collaboration.MaxConcurrency = 8
	}
	if len(c.Collaboration.SynthesisPreference) == 0 {
		c.Collaboration.SynthesisPreference = []string{"openai_gpt4", "openai_gpt35"}
	}
	if c.Collaboration.MaxAgentsPerProject <= 0 {
		c.Collaboration.MaxAgentsPerProject = 5
	}
	if c.Collaboration.MaxMessagesPerProject <= 0 {
		c.Collaboration.MaxMessagesPerProject = 1000
	}
	if c.Defaults.Temperature <= 0 {
		c.Defaults.Temperature = 0.7
	}
	if c.Defaults.MaxTokens <= 0 {
		c.Defaults.MaxTokens = 2000
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	return c
}

// Validate reports configuration that cannot serve a collaboration round.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Storage.Driver {
	case "local":
	case "s3":
		if strings.TrimSpace(c.Storage.S3Bucket) == "" {
			return fmt.Errorf("storage.s3_bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Storage.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown storage.format %q", c.Storage.Format)
	}
	agents, err := c.ResolveAgents()
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return fmt.Errorf("no usable agents: configure at least one provider API key or an [[agents]] entry")
	}
	return nil
}

// AvailableServices reports which remote providers have an API key.
func (c Config) AvailableServices() map[domain.Engine]bool {
	out := make(map[domain.Engine]bool, len(domain.Engines))
	for _, engine := range domain.Engines {
		if engine == domain.EngineEcho {
			continue
		}
		out[engine] = c.Provider(engine).APIKey != ""
	}
	return out
}

func (c Config) Provider(engine domain.Engine) ProviderConfig {
	return c.Providers[string(engine)]
}

func expandHome(path string) (string, error) {
	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	return filepath.Clean(resolved), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collabbot/config.toml"
	}
	return filepath.Join(home, ".collabbot", "config.toml")
}

// DefaultPath is the config location used when none is given.
func DefaultPath() string {
	return defaultConfigPath()
}
