package services

import (
	"context"
	"net/http"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to OpenAI and to the OpenAI-compatible APIs of
// Deepseek, Ollama and OpenRouter.
type OpenAICompleter struct {
	client   *openai.Client
	model    string
	provider string
}

// NewOpenAICompleter creates a completer for an OpenAI-compatible provider
func NewOpenAICompleter(cfg ProviderConfig) (*OpenAICompleter, error) {
	config, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = defaultModelFor(cfg.Provider)
	}

	return &OpenAICompleter{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		provider: cfg.Provider,
	}, nil
}

func (c *OpenAICompleter) Provider() string {
	return c.provider
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	req = NormalizeRequest(req)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	// ollama ignores response_format on older builds, the parser copes either way
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.Wrap(graph.ErrMalformedResponse, "no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError maps client errors onto the credential and upstream sentinels
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(graph.ErrUpstream, "request aborted: %v", err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	return statusError(status, err)
}

// statusError converts an HTTP status from a provider into a sentinel error
func statusError(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrapf(graph.ErrInvalidAPIKey, "%v", err)
	case http.StatusTooManyRequests:
		return errors.Wrapf(graph.ErrRateLimited, "%v", err)
	default:
		return errors.Wrapf(graph.ErrUpstream, "%v", err)
	}
}
