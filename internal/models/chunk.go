package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// DocumentChunk is a contiguous span of a document's extracted text
type DocumentChunk struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	DocumentID uint             `json:"documentId" gorm:"not null;index"`
	Position   int              `json:"position" gorm:"not null"`
	Content    string           `json:"content" gorm:"type:text;not null"`
	StartChar  int              `json:"startChar"`
	EndChar    int              `json:"endChar"`
	Embedding  *pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
