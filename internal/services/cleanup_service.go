package services

import (
	"context"
	"time"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/storage"
)

// CleanupService periodically removes expired documents and stale temp files
type CleanupService struct {
	store     Store
	documents *DocumentService
	files     storage.FileStore
	cfg       config.CleanupConfig
	now       func() time.Time
}

func NewCleanupService(store Store, documents *DocumentService, files storage.FileStore, cfg config.CleanupConfig) *CleanupService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.TempMaxAge <= 0 {
		cfg.TempMaxAge = 24 * time.Hour
	}
	return &CleanupService{store: store, documents: documents, files: files, cfg: cfg, now: time.Now}
}

// Start runs RunOnce on every tick until stopChan is closed
func (cs *CleanupService) Start(stopChan <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(cs.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), cs.cfg.Interval)
				cs.RunOnce(ctx)
				cancel()
			case <-stopChan:
				return
			}
		}
	}()
}

// RunOnce returns how many documents and temp files were removed
func (cs *CleanupService) RunOnce(ctx context.Context) (int, int) {
	docs := 0
	if cs.cfg.RetentionDays > 0 {
		cutoff := cs.now().AddDate(0, 0, -cs.cfg.RetentionDays)
		expired, err := cs.store.DocumentsOlderThan(ctx, cutoff)
		if err != nil {
			logger.WithError(err, "cleanup").Error("Failed to list expired documents")
		}
		for i := range expired {
			if err := cs.documents.remove(ctx, &expired[i]); err != nil {
				logger.WithDocument(expired[i].ID, expired[i].Filename).WithError(err).Warn("Failed to remove expired document")
				continue
			}
			docs++
		}
	}

	temps, err := cs.files.CleanupTemp(cs.cfg.TempMaxAge)
	if err != nil {
		logger.WithError(err, "cleanup").Warn("Failed to clean temp files")
	}

	if docs > 0 || temps > 0 {
		logger.Info("Cleanup finished", map[string]interface{}{"documents": docs, "tempFiles": temps})
	}
	return docs, temps
}
