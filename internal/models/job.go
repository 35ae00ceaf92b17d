package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ProcessingJob tracks one run of the document pipeline
type ProcessingJob struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	DocumentID  uint       `json:"documentId" gorm:"not null;index"`
	Status      JobStatus  `json:"status" gorm:"not null;default:'pending';index"`
	Stage       string     `json:"stage"`
	Progress    int        `json:"progress" gorm:"default:0"`
	Error       string     `json:"error" gorm:"type:text"`
	Attempts    int        `json:"attempts" gorm:"default:0"`
	BypassCache bool       `json:"bypassCache" gorm:"default:false"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}
