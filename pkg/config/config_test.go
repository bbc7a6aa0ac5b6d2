package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HOST", "PORT", "DEBUG", "LOG_LEVEL", "MAX_UPLOAD_MB",
	"LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "DEEPSEEK_API_KEY",
	"OPENROUTER_API_KEY", "OLLAMA_URL", "GEMINI_API_KEY", "LLM_CONTEXT_TOKENS",
	"LLM_MAX_CHUNKS", "LLM_TIMEOUT", "LLM_REQUESTS_PER_MINUTE",
	"SESSION_BACKEND", "SESSION_TTL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD",
}

// clearEnv blanks every variable Load reads; empty values are ignored
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "0.0.0.0:8501", cfg.Addr())
	assert.Equal(t, 10*1024*1024, cfg.MaxUploadBytes())
	assert.False(t, cfg.Neo4j.Enabled())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
host: 127.0.0.1
port: 9000
llm:
  provider: deepseek
  deepseek_api_key: sk-file
  max_chunks: 2
sessions:
  ttl: 30m
neo4j:
  uri: bolt://localhost:7687
`)
	t.Setenv("PORT", "9100")
	t.Setenv("LLM_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "sk-file", cfg.LLM.APIKey())
	assert.Equal(t, 2, cfg.LLM.MaxChunks)
	assert.Equal(t, 12000, cfg.LLM.ContextTokens)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
	assert.True(t, cfg.Neo4j.Enabled())
	assert.Equal(t, "neo4j", cfg.Neo4j.Username)
}

func TestLoad_NormalizesCase(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.LLM.APIKey())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "redis", cfg.Sessions.Backend)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad port", env: map[string]string{"PORT": "http"}, wantErr: "PORT"},
		{name: "bad duration", env: map[string]string{"SESSION_TTL": "two hours"}, wantErr: "SESSION_TTL"},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}, wantErr: "Port"},
		{name: "unknown provider", env: map[string]string{"LLM_PROVIDER": "claude-local"}, wantErr: "Provider"},
		{name: "redis without address", env: map[string]string{"SESSION_BACKEND": "redis"}, wantErr: "RedisAddr"},
		{name: "upload above limit", env: map[string]string{"MAX_UPLOAD_MB": "50"}, wantErr: "MaxUploadMB"},
		{name: "bad base url", env: map[string]string{"OPENAI_BASE_URL": "not a url"}, wantErr: "OpenAIBaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "port: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLLMConfig_Keys(t *testing.T) {
	llm := LLMConfig{
		OpenAIKey:     "openai",
		OpenAIBaseURL: "https://proxy.example.com/v1",
		DeepseekKey:   "deepseek",
		OpenRouterKey: "openrouter",
		OllamaURL:     "http://localhost:11434",
	}

	for provider, want := range map[string]string{
		"openai": "openai", "deepseek": "deepseek", "openrouter": "openrouter", "ollama": "", "": "openai",
	} {
		llm.Provider = provider
		assert.Equal(t, want, llm.APIKey(), provider)
	}

	llm.Provider = "ollama"
	assert.Equal(t, "http://localhost:11434", llm.BaseURL())
	llm.Provider = "openai"
	assert.Equal(t, "https://proxy.example.com/v1", llm.BaseURL())
	llm.Provider = "deepseek"
	assert.Empty(t, llm.BaseURL())
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	logger := NewLogger(cfg)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg.Debug = true
	logger = NewLogger(cfg)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	cfg.Debug = false
	cfg.LogLevel = "bogus"
	assert.Equal(t, logrus.InfoLevel, NewLogger(cfg).GetLevel())
}
