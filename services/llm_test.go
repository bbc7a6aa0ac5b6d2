package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// OpenAI-compatible providers
// ============================================================================

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func openAIServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"message": "request failed", "type": "test_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var seen chatRequest
	srv := openAIServer(t, http.StatusOK, `{"concepts": []}`, &seen)

	c, err := NewOpenAICompleter(ProviderConfig{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())

	out, err := c.Complete(context.Background(), CompletionRequest{
		System: "You analyze documents.",
		Prompt: "Extract concepts",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"concepts": []}`, out)

	assert.Equal(t, DefaultModel, seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "You analyze documents.", seen.Messages[0].Content)
	assert.Equal(t, "user", seen.Messages[1].Role)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_object", seen.ResponseFormat.Type)
}

func TestOpenAICompleter_PlainPrompt(t *testing.T) {
	var seen chatRequest
	srv := openAIServer(t, http.StatusOK, "ok", &seen)

	c, err := NewOpenAICompleter(ProviderConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), CompletionRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", seen.Model)
	require.Len(t, seen.Messages, 1)
	assert.Nil(t, seen.ResponseFormat)
}

func TestOpenAICompleter_Errors(t *testing.T) {
	tests := []struct {
		status int
		want   error
		kind   graph.ErrorKind
	}{
		{status: http.StatusUnauthorized, want: graph.ErrInvalidAPIKey, kind: graph.KindCredential},
		{status: http.StatusForbidden, want: graph.ErrInvalidAPIKey, kind: graph.KindCredential},
		{status: http.StatusTooManyRequests, want: graph.ErrRateLimited, kind: graph.KindUpstream},
		{status: http.StatusBadGateway, want: graph.ErrUpstream, kind: graph.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := openAIServer(t, tt.status, "", nil)
			c, err := NewOpenAICompleter(ProviderConfig{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), CompletionRequest{Prompt: "x"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
			assert.Equal(t, tt.kind, graph.KindOf(err))
		})
	}
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-1", "object": "chat.completion", "choices": []}`))
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter(ProviderConfig{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, graph.ErrMalformedResponse))
}

func TestClientConfig(t *testing.T) {
	cfg, err := ClientConfig(ProviderConfig{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, ollamaBaseURL, cfg.BaseURL)

	cfg, err = ClientConfig(ProviderConfig{Provider: ProviderOllama, BaseURL: "http://gpu-box:11434/"})
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434/v1", cfg.BaseURL)

	cfg, err = ClientConfig(ProviderConfig{Provider: ProviderOpenRouter, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, openRouterBaseURL, cfg.BaseURL)

	cfg, err = ClientConfig(ProviderConfig{Provider: ProviderDeepseek, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, deepseekBaseURL, cfg.BaseURL)

	_, err = ClientConfig(ProviderConfig{Provider: ProviderGemini, APIKey: "k"})
	assert.Error(t, err)

	assert.Equal(t, "deepseek-chat", defaultModelFor(ProviderDeepseek))
	assert.Equal(t, DefaultModel, defaultModelFor(ProviderOpenAI))
}

// ============================================================================
// Gemini
// ============================================================================

func TestGeminiCompleter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"concepts\": []}"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiCompleter(context.Background(), ProviderConfig{Provider: ProviderGemini, APIKey: "g-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, c.Provider())

	out, err := c.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "Extract", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"concepts": []}`, out)
}

// ============================================================================
// NewCompleter and Guard
// ============================================================================

func TestNewCompleter(t *testing.T) {
	ctx := context.Background()

	_, err := NewCompleter(ctx, ProviderConfig{Provider: ProviderOpenAI})
	assert.True(t, errors.Is(err, graph.ErrMissingAPIKey))
	assert.Equal(t, graph.KindCredential, graph.KindOf(err))

	_, err = NewCompleter(ctx, ProviderConfig{Provider: "watson", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown LLM provider")

	c, err := NewCompleter(ctx, ProviderConfig{Provider: "Ollama"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, c.Provider())
	assert.IsType(t, &Guard{}, c)

	c, err = NewCompleter(ctx, ProviderConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())
}

type fakeCompleter struct {
	provider string
	calls    atomic.Int32
	err      error
	block    bool
}

func (f *fakeCompleter) Provider() string { return f.provider }

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return "answer: " + req.Prompt, nil
}

func TestGuard_PassesThrough(t *testing.T) {
	inner := &fakeCompleter{provider: "guard-pass"}
	g := NewGuard(inner, GuardConfig{})

	out, err := g.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "answer: hi", out)
	assert.Equal(t, "guard-pass", g.Provider())
}

func TestGuard_OpensAfterUpstreamFailures(t *testing.T) {
	inner := &fakeCompleter{provider: "guard-trip", err: errors.Wrap(graph.ErrUpstream, "503")}
	g := NewGuard(inner, GuardConfig{MinRequests: 3, FailureThreshold: 1, OpenTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
		require.Error(t, err)
	}
	require.EqualValues(t, 3, inner.calls.Load())

	_, err := g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, graph.ErrUpstream))
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.EqualValues(t, 3, inner.calls.Load(), "an open breaker does not call the provider")
}

func TestGuard_InvalidKeysDoNotTrip(t *testing.T) {
	inner := &fakeCompleter{provider: "guard-keys", err: errors.Wrap(graph.ErrInvalidAPIKey, "401")}
	g := NewGuard(inner, GuardConfig{MinRequests: 2, FailureThreshold: 1, OpenTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		_, err := g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
		assert.True(t, errors.Is(err, graph.ErrInvalidAPIKey))
	}
	assert.EqualValues(t, 5, inner.calls.Load())
}

func TestGuard_Timeout(t *testing.T) {
	inner := &fakeCompleter{provider: "guard-timeout", block: true}
	g := NewGuard(inner, GuardConfig{Timeout: 20 * time.Millisecond})

	_, err := g.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGuard_RateLimit(t *testing.T) {
	inner := &fakeCompleter{provider: "guard-rate"}
	g := NewGuard(inner, GuardConfig{RequestsPerMinute: 1})

	_, err := g.Complete(context.Background(), CompletionRequest{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = g.Complete(ctx, CompletionRequest{Prompt: "second"})
	assert.True(t, errors.Is(err, graph.ErrRateLimited))
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestNormalizeRequest(t *testing.T) {
	req := NormalizeRequest(CompletionRequest{})
	assert.Equal(t, float32(DefaultTemperature), req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)

	req = NormalizeRequest(CompletionRequest{Temperature: 0.9, MaxTokens: 10})
	assert.Equal(t, float32(0.9), req.Temperature)
	assert.Equal(t, 10, req.MaxTokens)
}

func TestDefaultHttpClient(t *testing.T) {
	assert.Same(t, DefaultHttpClient(), DefaultHttpClient())
	assert.Equal(t, 30*time.Second, DefaultHttpClient().Timeout)
}
