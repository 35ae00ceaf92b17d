// Package vectorstore stores document chunk embeddings and the regulatory
// passage corpus, and answers similarity queries over the corpus.
package vectorstore

import (
	"context"
	"errors"
	"math"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Chunk struct {
	Position  int
	Content   string
	StartChar int
	EndChar   int
	Embedding []float32
}

type Passage struct {
	ID           uint      `json:"id"`
	Source       string    `json:"source"`
	Reference    string    `json:"reference"`
	Jurisdiction string    `json:"jurisdiction,omitempty"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"`
}

// Match is a passage scored against a query; Similarity is cosine similarity
type Match struct {
	Passage    Passage `json:"passage"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

type Store interface {
	UpsertChunks(ctx context.Context, documentID uint, chunks []Chunk) error
	DeleteDocument(ctx context.Context, documentID uint) error
	AddPassages(ctx context.Context, passages []Passage) (int, error)
	// SearchPassages returns at most k passages with similarity >= minScore,
	// best first.
	SearchPassages(ctx context.Context, vector []float32, k int, minScore float64) ([]Match, error)
	CountPassages(ctx context.Context) (int64, error)
	Name() string
}

// CosineSimilarity returns 0 for empty or mismatched vectors
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Mean averages equally sized vectors; vectors of another length are skipped
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}
