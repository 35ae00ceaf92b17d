package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/regcheck/backend/internal/models"
)

// Store is the relational state the services read and write
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uint) (*models.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]models.Document, int64, error)
	UpdateDocument(ctx context.Context, id uint, fields map[string]interface{}) error
	// UpdateDocumentIfStatus applies fields only while the document is in one
	// of statuses and reports whether it did
	UpdateDocumentIfStatus(ctx context.Context, id uint, statuses []models.DocumentStatus, fields map[string]interface{}) (bool, error)
	// DeleteDocument removes the document row with its analysis and jobs
	DeleteDocument(ctx context.Context, id uint) error
	DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Document, error)

	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id uint) (*models.ProcessingJob, error)
	UpdateJob(ctx context.Context, id uint, fields map[string]interface{}) error
	ListJobs(ctx context.Context, documentID uint) ([]models.ProcessingJob, error)
	UnfinishedJobs(ctx context.Context) ([]models.ProcessingJob, error)

	// SaveAnalysis replaces any previous analysis of the same document
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysis(ctx context.Context, documentID uint) (*models.AnalysisResult, error)
}

type DocumentFilter struct {
	OwnerID uint
	Status  string
	Offset  int
	Limit   int
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

func (s *GormStore) GetDocument(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &doc, nil
}

func (s *GormStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Document{}).Where("owner_id = ?", f.OwnerID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []models.Document
	err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&docs).Error
	return docs, total, err
}

func (s *GormStore) UpdateDocument(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormStore) UpdateDocumentIfStatus(ctx context.Context, id uint, statuses []models.DocumentStatus, fields map[string]interface{}) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) DeleteDocument(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("analysis_id IN (?)",
			tx.Model(&models.AnalysisResult{}).Select("id").Where("document_id = ?", id),
		).Delete(&models.ComplianceIssue{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.AnalysisResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.ProcessingJob{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, id).Error
	})
}

func (s *GormStore) DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []models.DocumentStatus{models.DocumentStatusCompleted, models.DocumentStatusError}).
		Find(&docs).Error
	return docs, err
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) GetJob(ctx context.Context, id uint) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (s *GormStore) UpdateJob(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.ProcessingJob{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormStore) ListJobs(ctx context.Context, documentID uint) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

func (s *GormStore) UnfinishedJobs(ctx context.Context) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusRunning}).
		Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}

func (s *GormStore) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AnalysisResult
		err := tx.Where("document_id = ?", result.DocumentID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("analysis_id = ?", existing.ID).Delete(&models.ComplianceIssue{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(result).Error
	})
}

func (s *GormStore) GetAnalysis(ctx context.Context, documentID uint) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := s.db.WithContext(ctx).Preload("Issues").Where("document_id = ?", documentID).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *GormStore) SaveUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *GormStore) ListUsers(ctx context.Context, search string, offset, limit int) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	err := query.Order("id").Offset(offset).Limit(limit).Find(&users).Error
	return users, total, err
}
