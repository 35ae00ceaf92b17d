package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// RegulationPassage is one indexed excerpt of the regulatory corpus
type RegulationPassage struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	Source       string           `json:"source" gorm:"not null;index"`
	Reference    string           `json:"reference" gorm:"not null;index"`
	Jurisdiction string           `json:"jurisdiction"`
	Content      string           `json:"content" gorm:"type:text;not null"`
	Embedding    *pgvector.Vector `json:"-" gorm:"type:vector"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (RegulationPassage) TableName() string {
	return "regulation_passages"
}
