package services

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	ollamaBaseURL     = "http://localhost:11434/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
)

// ClientConfig returns the go-openai configuration for an OpenAI-compatible provider
func ClientConfig(cfg ProviderConfig) (openai.ClientConfig, error) {
	switch cfg.Provider {
	case ProviderOllama:
		config := openai.DefaultConfig("not-needed")
		config.BaseURL = ollamaURL(cfg.BaseURL)
		return config, nil

	case ProviderOpenRouter:
		config := openai.DefaultConfig(cfg.APIKey)
		config.BaseURL = orDefault(cfg.BaseURL, openRouterBaseURL)
		config.OrgID = "openrouter"
		return config, nil

	case ProviderDeepseek:
		config := openai.DefaultConfig(cfg.APIKey)
		config.BaseURL = orDefault(cfg.BaseURL, deepseekBaseURL)
		return config, nil

	case ProviderOpenAI, "":
		config := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
		return config, nil
	}

	return openai.ClientConfig{}, errors.Errorf("%s is not an OpenAI-compatible provider", cfg.Provider)
}

func defaultModelFor(provider string) string {
	switch provider {
	case ProviderDeepseek:
		return "deepseek-chat"
	case ProviderOllama:
		return "llama3.1"
	case ProviderOpenRouter:
		return "openai/gpt-4o"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return DefaultModel
	}
}

// ollamaURL accepts both the server root and the /v1 API base
func ollamaURL(base string) string {
	if base == "" {
		return ollamaBaseURL
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
