package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabbot/internal/domain"
)

var envNames = []string{
	"OPENAI_API_KEY", "GROQ_API_KEY", "DEEPSEEK_API_KEY", "XAI_API_KEY",
	"OPENROUTER_API_KEY", "MISTRAL_API_KEY", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"STORAGE_BACKEND", "STORAGE_DRIVER", "STORAGE_FORMAT", "PROJECTS_STORAGE_PATH",
	"SQLITE_PATH", "S3_BUCKET", "S3_PREFIX", "S3_REGION", "SYNTHESIS_AGENT",
	"COLLABORATION_TIMEOUT", "MAX_AGENTS_PER_PROJECT", "MAX_MESSAGES_PER_PROJECT",
	"DEFAULT_TEMPERATURE", "DEFAULT_MAX_TOKENS",
}

// clearEnv unsets every override for the test so host variables cannot leak
// in. t.Setenv restores the previous values on cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		for _, key := range []string{name, namespace + "_" + name} {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ":10000", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "json", cfg.Storage.Format)
	assert.Equal(t, 300*time.Second, cfg.Collaboration.QueryTimeout())
	assert.Equal(t, 5, cfg.Collaboration.ContextMessages)
	assert.Equal(t, 100, cfg.Collaboration.MessageTruncate)
	assert.InDelta(t, 0.8, cfg.Collaboration.DefaultConfidence, 1e-9)
	assert.Equal(t, 5, cfg.Collaboration.MaxAgentsPerProject)
	assert.Equal(t, 1000, cfg.Collaboration.MaxMessagesPerProject)
	assert.InDelta(t, 0.7, cfg.Defaults.Temperature, 1e-9)
	assert.Equal(t, 2000, cfg.Defaults.MaxTokens)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:8080"

[storage]
format = "yaml"

[collaboration]
synthesis_agent = "writer"
context_messages = 3

[providers.openai]
api_key = "sk-file"

[[agents]]
name = "writer"
role = "Writer"
engine = "echo"
temperature = 0.2

[[agents]]
name = "coder"
role = "Coder"
engine = "OpenAI"
model = "gpt-4o"
max_tokens = 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.Path)
	assert.Empty(t, cfg.UnknownKeys)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "yaml", cfg.Storage.Format)
	assert.Equal(t, 3, cfg.Collaboration.ContextMessages)
	assert.Equal(t, "sk-file", cfg.Provider(domain.EngineOpenAI).APIKey)

	agents, err := cfg.ResolveAgents()
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "writer", agents[0].Name)
	assert.Equal(t, domain.EngineEcho, agents[0].Engine)
	assert.InDelta(t, 0.2, agents[0].Model.Temperature, 1e-9)
	assert.Equal(t, 2000, agents[0].Model.MaxTokens)
	assert.Equal(t, domain.EngineOpenAI, agents[1].Engine)
	assert.Equal(t, 500, agents[1].Model.MaxTokens)
	assert.InDelta(t, 0.7, agents[1].Model.Temperature, 1e-9)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadMissingDefaultFileFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk-bare")
	t.Setenv("COLLABBOT_DEEPSEEK_API_KEY", "ds-prefixed")
	t.Setenv("COLLABORATION_TIMEOUT", "60")
	t.Setenv("COLLABBOT_PROJECTS_STORAGE_PATH", "/var/lib/collabbot")

	cfg, err := Load(writeConfig(t, `
[storage]
path = "from-file"
`))
	require.NoError(t, err)

	assert.Equal(t, "gsk-bare", cfg.Provider(domain.EngineGroq).APIKey)
	assert.Equal(t, "ds-prefixed", cfg.Provider(domain.EngineDeepSeek).APIKey)
	assert.Equal(t, 60*time.Second, cfg.Collaboration.QueryTimeout())
	assert.Equal(t, "/var/lib/collabbot", cfg.Storage.Path)

	agents, err := cfg.ResolveAgents()
	require.NoError(t, err)
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"groq_llama", "deepseek"}, names)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "no agents", text: "", wantErr: true},
		{name: "catalogue from key", text: "[providers.openai]\napi_key = \"k\"\n"},
		{name: "unknown engine", text: "[[agents]]\nname = \"a\"\nengine = \"palm\"\n", wantErr: true},
		{name: "duplicate agent", text: "[[agents]]\nname = \"a\"\nengine = \"echo\"\n[[agents]]\nname = \"a\"\nengine = \"echo\"\n", wantErr: true},
		{name: "bad backend", text: "[storage]\nbackend = \"redis\"\n[[agents]]\nname = \"a\"\nengine = \"echo\"\n", wantErr: true},
		{name: "s3 without bucket", text: "[storage]\ndriver = \"s3\"\n[[agents]]\nname = \"a\"\nengine = \"echo\"\n", wantErr: true},
		{name: "echo agent", text: "[[agents]]\nname = \"a\"\nengine = \"echo\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse(tc.text)
			require.NoError(t, err)
			err = cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSummaryRedactsKeys(t *testing.T) {
	cfg, err := Parse("[providers.openai]\napi_key = \"sk-secret\"\n")
	require.NoError(t, err)

	s := cfg.Summary()
	assert.True(t, s.Services[domain.EngineOpenAI])
	assert.False(t, s.Services[domain.EngineGroq])
	assert.Equal(t, []string{"openai_gpt4", "openai_gpt35"}, s.Agents)
	assert.NotContains(t, s.Services, domain.EngineEcho)
}

func TestLoadReportsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
adr = ":9000"

[collaboration]
context_messages = 4

[[agents]]
name = "writer"
engine = "echo"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"server.adr"}, cfg.UnknownKeys)
	assert.Equal(t, 4, cfg.Collaboration.ContextMessages)
}
