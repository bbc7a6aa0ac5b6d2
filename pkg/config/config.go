package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of the web server, the CLI and the MCP tools
type Config struct {
	Host        string `yaml:"host" validate:"required"`
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
	MaxUploadMB int    `yaml:"max_upload_mb" validate:"min=1,max=10"`

	LLM      LLMConfig     `yaml:"llm"`
	Sessions SessionConfig `yaml:"sessions"`
	Neo4j    Neo4jConfig   `yaml:"neo4j"`
}

// LLMConfig selects the language model provider
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"oneof=openai deepseek ollama openrouter gemini"`
	Model             string        `yaml:"model"`
	OpenAIKey         string        `yaml:"openai_api_key"`
	OpenAIBaseURL     string        `yaml:"openai_base_url" validate:"omitempty,url"`
	DeepseekKey       string        `yaml:"deepseek_api_key"`
	OpenRouterKey     string        `yaml:"openrouter_api_key"`
	OllamaURL         string        `yaml:"ollama_url" validate:"omitempty,url"`
	GeminiKey         string        `yaml:"gemini_api_key"`
	ContextTokens     int           `yaml:"context_tokens" validate:"min=500"`
	MaxChunks         int           `yaml:"max_chunks" validate:"min=1,max=20"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"min=0"`
}

// SessionConfig selects where UI sessions live
type SessionConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=memory redis"`
	TTL           time.Duration `yaml:"ttl" validate:"min=0"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"min=0"`
}

// Neo4jConfig enables the Neo4j export when URI is set
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a Neo4j export target is configured
func (n Neo4jConfig) Enabled() bool {
	return n.URI != ""
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Host:        "0.0.0.0",
		Port:        8501,
		LogLevel:    "info",
		MaxUploadMB: 10,
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o",
			ContextTokens: 12000,
			MaxChunks:     4,
			Timeout:       2 * time.Minute,
		},
		Sessions: SessionConfig{
			Backend: "memory",
			TTL:     2 * time.Hour,
		},
		Neo4j: Neo4jConfig{
			Username: "neo4j",
		},
	}
}

var validate = validator.New()

// Load builds the configuration from defaults, an optional YAML file and the environment, in that order
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Addr is the listen address of the web server
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxUploadBytes is the upload limit in bytes
func (c *Config) MaxUploadBytes() int {
	return c.MaxUploadMB * 1024 * 1024
}

// APIKey returns the configured key of the selected provider
func (l LLMConfig) APIKey() string {
	switch l.Provider {
	case "deepseek":
		return l.DeepseekKey
	case "openrouter":
		return l.OpenRouterKey
	case "gemini":
		return l.GeminiKey
	case "ollama":
		return ""
	default:
		return l.OpenAIKey
	}
}

// BaseURL returns the configured endpoint override of the selected provider
func (l LLMConfig) BaseURL() string {
	switch l.Provider {
	case "ollama":
		return l.OllamaURL
	case "openai":
		return l.OpenAIBaseURL
	default:
		return ""
	}
}

func applyEnv(cfg *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = i
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("HOST", &cfg.Host)
	integer("PORT", &cfg.Port)
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = strings.EqualFold(v, "true")
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	integer("MAX_UPLOAD_MB", &cfg.MaxUploadMB)

	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAIKey)
	str("OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	str("DEEPSEEK_API_KEY", &cfg.LLM.DeepseekKey)
	str("OPENROUTER_API_KEY", &cfg.LLM.OpenRouterKey)
	str("OLLAMA_URL", &cfg.LLM.OllamaURL)
	str("GEMINI_API_KEY", &cfg.LLM.GeminiKey)
	integer("LLM_CONTEXT_TOKENS", &cfg.LLM.ContextTokens)
	integer("LLM_MAX_CHUNKS", &cfg.LLM.MaxChunks)
	duration("LLM_TIMEOUT", &cfg.LLM.Timeout)
	integer("LLM_REQUESTS_PER_MINUTE", &cfg.LLM.RequestsPerMinute)

	str("SESSION_BACKEND", &cfg.Sessions.Backend)
	duration("SESSION_TTL", &cfg.Sessions.TTL)
	str("REDIS_ADDR", &cfg.Sessions.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Sessions.RedisPassword)
	integer("REDIS_DB", &cfg.Sessions.RedisDB)

	str("NEO4J_URI", &cfg.Neo4j.URI)
	str("NEO4J_USERNAME", &cfg.Neo4j.Username)
	str("NEO4J_PASSWORD", &cfg.Neo4j.Password)

	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.Sessions.Backend = strings.ToLower(cfg.Sessions.Backend)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if len(errs) > 0 {
		return errors.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewLogger creates the process logger: JSON by default, text with full
// timestamps in debug mode.
func NewLogger(cfg *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Debug {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}
