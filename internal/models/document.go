package models

import (
	"time"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusError      DocumentStatus = "error"
)

// Pipeline stages reported on Document.Stage and ProcessingJob.Stage
const (
	StageQueued     = "queued"
	StageExtracting = "extracting"
	StageChunking   = "chunking"
	StageEmbedding  = "embedding"
	StageIndexing   = "indexing"
	StageRetrieving = "retrieving"
	StageAnalyzing  = "analyzing"
	StageSaving     = "saving"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

type Document struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	OwnerID      uint           `json:"ownerId" gorm:"not null;index"`
	Owner        *User          `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Filename     string         `json:"filename" gorm:"not null"`
	StoragePath  string         `json:"-" gorm:"not null"`
	MimeType     string         `json:"mimeType" gorm:"not null"`
	Size         int64          `json:"size"`
	ContentHash  string         `json:"contentHash" gorm:"size:64;index"`
	Status       DocumentStatus `json:"status" gorm:"not null;default:'pending';index"`
	Stage        string         `json:"stage"`
	Progress     int            `json:"progress" gorm:"default:0"`
	ErrorMessage string         `json:"errorMessage,omitempty" gorm:"type:text"`
	ChunkCount   int            `json:"chunkCount" gorm:"default:0"`
	ProcessedAt  *time.Time     `json:"processedAt"`
	CreatedAt    time.Time      `json:"uploadedAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}

// IsTerminal reports whether the pipeline has finished with this document
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusCompleted || d.Status == DocumentStatusError
}
