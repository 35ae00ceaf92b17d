package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// AnalysisResult is the compliance report produced for a document
type AnalysisResult struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	DocumentID      uint              `json:"documentId" gorm:"not null;uniqueIndex"`
	Summary         string            `json:"summary" gorm:"type:text"`
	RiskScore       int               `json:"riskScore"`
	OverallSeverity string            `json:"overallSeverity"`
	Issues          []ComplianceIssue `json:"issues" gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE"`
	Recommendations pq.StringArray    `json:"recommendations" gorm:"type:text[]"`
	Passages        datatypes.JSON    `json:"passages" gorm:"type:jsonb"`
	Provider        string            `json:"provider"`
	Model           string            `json:"model"`
	PromptVersion   string            `json:"promptVersion"`
	Cached          bool              `json:"cached"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

type ComplianceIssue struct {
	ID                  uint   `json:"id" gorm:"primaryKey"`
	AnalysisID          uint   `json:"analysisId" gorm:"not null;index"`
	Severity            string `json:"severity" gorm:"not null"`
	Category            string `json:"category"`
	Description         string `json:"description" gorm:"type:text"`
	RegulationReference string `json:"regulationReference"`
}

func (ComplianceIssue) TableName() string {
	return "compliance_issues"
}
