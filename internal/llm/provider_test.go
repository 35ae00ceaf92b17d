package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/upstream"
)

func TestOllamaProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:8b", req.Model)
		assert.Equal(t, "system text", req.System)
		assert.False(t, req.Stream)
		assert.Equal(t, "json", req.Format)
		assert.Equal(t, 0.8, req.Options["top_p"])
		json.NewEncoder(w).Encode(map[string]any{"model": "llama3:8b", "response": `{"summary":"ok"}`, "done": true, "eval_count": 12})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3:8b", srv.Client())
	resp, err := p.Generate(context.Background(), Request{System: "system text", Prompt: "p", Temperature: 0.1})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, resp.Text)
	assert.Equal(t, 12, resp.OutputTokens)
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m", srv.Client()).Generate(context.Background(), Request{Prompt: "p"})
	var se *upstream.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, se.Retryable())
}

func TestOllamaProviderModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"nomic-embed-text"}]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3:8b", srv.Client())
	models, err := p.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:8b", "nomic-embed-text"}, models)
	assert.NoError(t, p.Health(context.Background()))

	c := NewClient(p, config.LLMConfig{})
	st := c.Status(context.Background())
	assert.True(t, st.Healthy)
	assert.Len(t, st.Models, 2)
}

func TestAnthropicProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.NotNil(t, body["system"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"summary\":\"fine\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL+"/", "claude-test", 5*time.Second)
	resp, err := p.Generate(context.Background(), Request{System: "sys", Prompt: "analyze", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"fine"}`, resp.Text)
	assert.Equal(t, 20, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
}

func TestAnthropicProviderMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL+"/", "claude-test", 5*time.Second)
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	var se *upstream.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "ollama", Model: "llama3:8b"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = NewProvider(config.LLMConfig{Provider: "anthropic"})
	assert.Error(t, err)

	p, err = NewProvider(config.LLMConfig{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, p.Model())

	_, err = NewProvider(config.LLMConfig{Provider: "gpt-j"})
	assert.Error(t, err)
}
