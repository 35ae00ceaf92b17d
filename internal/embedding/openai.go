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

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// OpenAIEmbedder talks to any service exposing the OpenAI /embeddings API
type OpenAIEmbedder struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
	policy    upstream.Policy
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, dimension int, client *http.Client, policy upstream.Policy) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		client:    client,
		limiter:   upstream.NewLimiter(0, 0),
		policy:    policy,
	}
}

func (e *OpenAIEmbedder) Model() string  { return e.model }
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var vec []float32
	err = upstream.Retry(ctx, e.policy, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return upstream.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("embedding request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &upstream.StatusError{Service: "openai embeddings", StatusCode: resp.StatusCode, Body: string(b)}
		}

		var out openAIEmbeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return upstream.Permanent(fmt.Errorf("failed to decode embedding response: %w", err))
		}
		if len(out.Data) > 0 {
			vec = out.Data[0].Embedding
		}
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
