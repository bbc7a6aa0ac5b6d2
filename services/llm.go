package services

import (
	"context"
	"strings"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
)

// Supported providers
const (
	ProviderOpenAI     = "openai"
	ProviderDeepseek   = "deepseek"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Defaults used for concept extraction
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4000
)

// CompletionRequest is a single prompt sent to a language model
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks the provider for a JSON object response when it supports it
	JSON bool
}

// Completer sends prompts to a language model provider
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Provider() string
}

// ProviderConfig selects and configures a provider
type ProviderConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// NewCompleter builds the completer for cfg.Provider, guarded by a circuit
// breaker and an optional rate limiter. A missing key fails here so no
// request is ever sent without credentials.
func NewCompleter(ctx context.Context, cfg ProviderConfig) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	cfg.Provider = provider

	if cfg.APIKey == "" && provider != ProviderOllama {
		return nil, errors.Wrapf(graph.ErrMissingAPIKey, "provider %s", provider)
	}

	var (
		inner Completer
		err   error
	)
	switch provider {
	case ProviderOpenAI, ProviderDeepseek, ProviderOllama, ProviderOpenRouter:
		inner, err = NewOpenAICompleter(cfg)
	case ProviderGemini:
		inner, err = NewGeminiCompleter(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGuard(inner, GuardConfig{
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), nil
}

// NormalizeRequest fills in the extraction defaults
func NormalizeRequest(req CompletionRequest) CompletionRequest {
	if req.Temperature <= 0 {
		req.Temperature = DefaultTemperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	return req
}
