package extractor

import (
	"context"
	"sync"

	"github.com/athapong/context-graph-explorer/pkg/config"
	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/services"
	"github.com/sirupsen/logrus"
)

// Factory builds an extractor for one request. An empty apiKey falls back
// to the configured key of the provider.
type Factory func(ctx context.Context, apiKey string) (graph.ConceptExtractor, error)

// NewFactory returns a Factory for the configured provider. The tokenizer
// is loaded once and shared.
func NewFactory(llm config.LLMConfig, logger *logrus.Logger) Factory {
	tokenizer := sync.OnceValue(func() Tokenizer {
		tk, err := NewTiktokenTokenizer(DefaultEncoding)
		if err != nil {
			if logger != nil {
				logger.WithError(err).Warn("Falling back to word counts for chunking")
			}
			return WordTokenizer{}
		}
		return tk
	})

	return func(ctx context.Context, apiKey string) (graph.ConceptExtractor, error) {
		if apiKey == "" {
			apiKey = llm.APIKey()
		}

		completer, err := services.NewCompleter(ctx, services.ProviderConfig{
			Provider:          llm.Provider,
			Model:             llm.Model,
			APIKey:            apiKey,
			BaseURL:           llm.BaseURL(),
			Timeout:           llm.Timeout,
			RequestsPerMinute: llm.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}

		return New(completer, Config{
			ContextTokens: llm.ContextTokens,
			MaxChunks:     llm.MaxChunks,
			Tokenizer:     tokenizer(),
			Logger:        logger,
		}), nil
	}
}
