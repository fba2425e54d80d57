package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"collabbot/internal/domain"
)

const namespace = "COLLABBOT"

// Env holds the environment overrides. Each variable is read as
// COLLABBOT_<NAME> first and as the bare <NAME> second.
type Env struct {
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
	DeepSeekAPIKey   string `envconfig:"DEEPSEEK_API_KEY"`
	XAIAPIKey        string `envconfig:"XAI_API_KEY"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	MistralAPIKey    string `envconfig:"MISTRAL_API_KEY"`

	HTTPAddr  string `envconfig:"HTTP_ADDR"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT"`

	StorageBackend      string `envconfig:"STORAGE_BACKEND"`
	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	StorageFormat       string `envconfig:"STORAGE_FORMAT"`
	ProjectsStoragePath string `envconfig:"PROJECTS_STORAGE_PATH"`
	SQLitePath          string `envconfig:"SQLITE_PATH"`
	S3Bucket            string `envconfig:"S3_BUCKET"`
	S3Prefix            string `envconfig:"S3_PREFIX"`
	S3Region            string `envconfig:"S3_REGION"`

	CollaborationTimeout  int     `envconfig:"COLLABORATION_TIMEOUT"`
	SynthesisAgent        string  `envconfig:"SYNTHESIS_AGENT"`
	MaxAgentsPerProject   int     `envconfig:"MAX_AGENTS_PER_PROJECT"`
	MaxMessagesPerProject int     `envconfig:"MAX_MESSAGES_PER_PROJECT"`
	DefaultTemperature    float64 `envconfig:"DEFAULT_TEMPERATURE"`
	DefaultMaxTokens      int     `envconfig:"DEFAULT_MAX_TOKENS"`
}

func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return Env{}, fmt.Errorf("load env: %w", err)
	}
	return env, nil
}

func applyEnv(cfg *Config) error {
	env, err := LoadEnv()
	if err != nil {
		return err
	}
	env.apply(cfg)
	return nil
}

func (e Env) apply(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	keys := map[domain.Engine]string{
		domain.EngineOpenAI:     e.OpenAIAPIKey,
		domain.EngineGroq:       e.GroqAPIKey,
		domain.EngineDeepSeek:   e.DeepSeekAPIKey,
		domain.EngineXAI:        e.XAIAPIKey,
		domain.EngineOpenRouter: e.OpenRouterAPIKey,
		domain.EngineMistral:    e.MistralAPIKey,
	}
	for engine, key := range keys {
		if key == "" {
			continue
		}
		p := cfg.Providers[string(engine)]
		p.APIKey = key
		cfg.Providers[string(engine)] = p
	}

	setString(&cfg.Server.Addr, e.HTTPAddr)
	setString(&cfg.Logging.Level, e.LogLevel)
	setString(&cfg.Logging.Format, e.LogFormat)
	setString(&cfg.Storage.Backend, e.StorageBackend)
	setString(&cfg.Storage.Driver, e.StorageDriver)
	setString(&cfg.Storage.Format, e.StorageFormat)
	setString(&cfg.Storage.Path, e.ProjectsStoragePath)
	setString(&cfg.Storage.SQLitePath, e.SQLitePath)
	setString(&cfg.Storage.S3Bucket, e.S3Bucket)
	setString(&cfg.Storage.S3Prefix, e.S3Prefix)
	setString(&cfg.Storage.S3Region, e.S3Region)
	setString(&cfg.Collaboration.SynthesisAgent, e.SynthesisAgent)
	setInt(&cfg.Collaboration.QueryTimeoutSeconds, e.CollaborationTimeout)
	setInt(&cfg.Collaboration.MaxAgentsPerProject, e.MaxAgentsPerProject)
	setInt(&cfg.Collaboration.MaxMessagesPerProject, e.MaxMessagesPerProject)
	setInt(&cfg.Defaults.MaxTokens, e.DefaultMaxTokens)
	if e.DefaultTemperature > 0 {
		cfg.Defaults.Temperature = e.DefaultTemperature
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
