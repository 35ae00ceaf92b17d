package services

import (
	"context"
	"fmt"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/vectorstore"
)

// RetrievalService finds the regulatory passages most similar to a document
type RetrievalService struct {
	store       vectorstore.Store
	topK        int
	minScore    float64
	queryChunks int
}

func NewRetrievalService(store vectorstore.Store, cfg config.VectorConfig) *RetrievalService {
	s := &RetrievalService{
		store:       store,
		topK:        cfg.TopK,
		minScore:    cfg.MinSimilarity,
		queryChunks: cfg.QueryChunks,
	}
	if s.topK <= 0 {
		s.topK = 5
	}
	if s.queryChunks <= 0 {
		s.queryChunks = 8
	}
	return s
}

// QueryVector averages the embeddings of the first chunks of a document
func (s *RetrievalService) QueryVector(chunks []vectorstore.Chunk) []float32 {
	var vectors [][]float32
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, c.Embedding)
		if len(vectors) == s.queryChunks {
			break
		}
	}
	return vectorstore.Mean(vectors)
}

// Retrieve returns up to topK distinct passages ranked from 1
func (s *RetrievalService) Retrieve(ctx context.Context, query []float32) ([]vectorstore.Match, error) {
	if len(query) == 0 {
		return []vectorstore.Match{}, nil
	}

	// Over-fetch so that duplicates do not shrink the result below k
	candidates, err := s.store.SearchPassages(ctx, query, s.topK*2, s.minScore)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	seen := make(map[string]bool, len(candidates))
	matches := make([]vectorstore.Match, 0, s.topK)
	for _, m := range candidates {
		key := m.Passage.Reference + "\x00" + m.Passage.Content
		if seen[key] {
			continue
		}
		seen[key] = true
		m.Rank = len(matches) + 1
		matches = append(matches, m)
		if len(matches) == s.topK {
			break
		}
	}
	return matches, nil
}
