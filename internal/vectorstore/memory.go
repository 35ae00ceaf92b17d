package vectorstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	chunks   map[uint][]Chunk
	passages []Passage
	nextID   uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[uint][]Chunk)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) UpsertChunks(ctx context.Context, documentID uint, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]Chunk, len(chunks))
	copy(cp, chunks)

	s.mu.Lock()
	s.chunks[documentID] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Chunks(documentID uint) []Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Chunk(nil), s.chunks[documentID]...)
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, documentID uint) error {
	s.mu.Lock()
	delete(s.chunks, documentID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AddPassages(ctx context.Context, passages []Passage) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := -1
	if len(s.passages) > 0 {
		dim = len(s.passages[0].Embedding)
	}
	for _, p := range passages {
		if dim < 0 {
			dim = len(p.Embedding)
		}
		if len(p.Embedding) != dim {
			return 0, ErrDimensionMismatch
		}
	}

	for _, p := range passages {
		s.nextID++
		p.ID = s.nextID
		s.passages = append(s.passages, p)
	}
	return len(passages), nil
}

func (s *MemoryStore) SearchPassages(ctx context.Context, vector []float32, k int, minScore float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var matches []Match
	for _, p := range s.passages {
		score := CosineSimilarity(vector, p.Embedding)
		if score >= minScore {
			matches = append(matches, Match{Passage: p, Similarity: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	return matches, nil
}

func (s *MemoryStore) CountPassages(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.passages)), nil
}
