package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/regcheck/backend/internal/models"
)

// PGStore keeps vectors in Postgres using the pgvector extension
type PGStore struct {
	db *gorm.DB
}

func NewPGStore(db *gorm.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Name() string { return "pgvector" }

// UpsertChunks replaces every chunk of the document
func (s *PGStore) UpsertChunks(ctx context.Context, documentID uint, chunks []Chunk) error {
	rows := make([]models.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		row := models.DocumentChunk{
			DocumentID: documentID,
			Position:   c.Position,
			Content:    c.Content,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
		}
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			row.Embedding = &v
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("failed to clear chunks: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

func (s *PGStore) DeleteDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error
}

func (s *PGStore) AddPassages(ctx context.Context, passages []Passage) (int, error) {
	rows := make([]models.RegulationPassage, 0, len(passages))
	for _, p := range passages {
		v := pgvector.NewVector(p.Embedding)
		rows = append(rows, models.RegulationPassage{
			Source:       p.Source,
			Reference:    p.Reference,
			Jurisdiction: p.Jurisdiction,
			Content:      p.Content,
			Embedding:    &v,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return 0, fmt.Errorf("failed to insert passages: %w", err)
	}
	return len(rows), nil
}

type passageRow struct {
	ID           uint
	Source       string
	Reference    string
	Jurisdiction string
	Content      string
	Similarity   float64
}

func (s *PGStore) SearchPassages(ctx context.Context, vector []float32, k int, minScore float64) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	q := pgvector.NewVector(vector)

	var rows []passageRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, source, reference, jurisdiction, content, 1 - (embedding <=> ?) AS similarity
		FROM regulation_passages
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> ?) >= ?
		ORDER BY embedding <=> ?
		LIMIT ?`, q, q, minScore, q, k).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for i, r := range rows {
		matches = append(matches, Match{
			Passage: Passage{
				ID:           r.ID,
				Source:       r.Source,
				Reference:    r.Reference,
				Jurisdiction: r.Jurisdiction,
				Content:      r.Content,
			},
			Similarity: r.Similarity,
			Rank:       i + 1,
		})
	}
	return matches, nil
}

func (s *PGStore) CountPassages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.RegulationPassage{}).Where("embedding IS NOT NULL").Count(&n).Error
	return n, err
}
