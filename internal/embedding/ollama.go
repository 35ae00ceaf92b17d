package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/regcheck/backend/internal/upstream"
)

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
	policy    upstream.Policy
}

func NewOllamaEmbedder(baseURL, model string, dimension int, client *http.Client, policy upstream.Policy) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    client,
		limiter:   upstream.NewLimiter(0, 0),
		policy:    policy,
	}
}

func (e *OllamaEmbedder) Model() string  { return e.model }
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var vec []float32
	err = upstream.Retry(ctx, e.policy, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return upstream.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &upstream.StatusError{Service: "ollama embeddings", StatusCode: resp.StatusCode, Body: string(b)}
		}

		var out ollamaEmbeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return upstream.Permanent(fmt.Errorf("failed to decode embedding response: %w", err))
		}
		vec = out.Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}
