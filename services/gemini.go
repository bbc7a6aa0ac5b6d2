package services

import (
	"context"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiCompleter calls the Gemini API
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer backed by the Gemini API
func NewGeminiCompleter(ctx context.Context, cfg ProviderConfig) (*GeminiCompleter, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	model := cfg.Model
	if model == "" || model == DefaultModel {
		model = defaultModelFor(ProviderGemini)
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

func (c *GeminiCompleter) Provider() string {
	return ProviderGemini
}

func (c *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	req = NormalizeRequest(req)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError(apiErr.Code, err)
		}
		return "", errors.Wrapf(graph.ErrUpstream, "%v", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.Wrap(graph.ErrMalformedResponse, "empty gemini response")
	}
	return text, nil
}
