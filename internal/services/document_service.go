package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/extraction"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/storage"
	"github.com/regcheck/backend/internal/vectorstore"
)

const (
	sniffLen        = 3072
	maliciousScan   = 2048
	defaultPageSize = 20
	maxPageSize     = 100
)

var maliciousMarkers = [][]byte{[]byte("<script"), []byte("<?php")}

// acceptedTypes lists the sniffed MIME types allowed for each extension.
// A .docx is a zip container and may sniff as plain zip.
var acceptedTypes = map[string][]string{
	".pdf":  {extraction.MimePDF},
	".docx": {extraction.MimeDOCX, "application/zip"},
	".txt":  {extraction.MimeText},
}

// JobQueue is what the document service needs from the job workers
type JobQueue interface {
	Enqueue(ctx context.Context, jobID uint) error
}

type DocumentService struct {
	store     Store
	files     storage.FileStore
	queue     JobQueue
	vectors   vectorstore.Store
	analysis  *AnalysisService
	maxSize   int64
	allowExts map[string]bool
}

func NewDocumentService(store Store, files storage.FileStore, queue JobQueue, vectors vectorstore.Store, analysis *AnalysisService, cfg config.UploadConfig) *DocumentService {
	allow := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		if _, known := acceptedTypes[ext]; known {
			allow[ext] = true
		}
	}
	return &DocumentService{
		store:     store,
		files:     files,
		queue:     queue,
		vectors:   vectors,
		analysis:  analysis,
		maxSize:   cfg.MaxSize,
		allowExts: allow,
	}
}

type UploadInput struct {
	OwnerID  uint
	Filename string
	Size     int64
	Content  io.Reader
}

type UploadResult struct {
	Document *models.Document
	Job      *models.ProcessingJob
}

// Upload validates and stores a document and queues it for processing.
// Nothing is persisted when validation fails.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Size == 0 {
		return nil, ErrEmptyFile
	}
	if in.Size > s.maxSize {
		return nil, ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !s.allowExts[ext] {
		return nil, ErrUnsupportedType
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmptyFile
	}

	detected := mimetype.Detect(head)
	if !typeMatches(detected, acceptedTypes[ext]) {
		logger.Warn("Upload content does not match its extension", map[string]interface{}{
			"filename": in.Filename,
			"detected": detected.String(),
		})
		return nil, ErrUnsupportedType
	}
	if containsMalicious(head) {
		return nil, ErrMaliciousContent
	}

	hasher := sha256.New()
	counter := &countingReader{r: io.MultiReader(bytes.NewReader(head), in.Content), h: hasher}
	path, err := s.files.Save(io.LimitReader(counter, s.maxSize+1), ext)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if counter.n > s.maxSize {
		s.removeFile(path)
		return nil, ErrFileTooLarge
	}

	mimeType, _ := extraction.TypeForExtension(ext)
	doc := &models.Document{
		OwnerID:     in.OwnerID,
		Filename:    filepath.Base(in.Filename),
		StoragePath: path,
		MimeType:    mimeType,
		Size:        counter.n,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		Status:      models.DocumentStatusPending,
		Stage:       models.StageQueued,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		s.removeFile(path)
		return nil, fmt.Errorf("create document: %w", err)
	}

	job, err := s.queueJob(ctx, doc, false)
	if err != nil {
		return nil, err
	}

	logger.WithDocument(doc.ID, doc.Filename).WithFields(map[string]interface{}{
		"size":   doc.Size,
		"job_id": job.ID,
	}).Info("Document uploaded")
	return &UploadResult{Document: doc, Job: job}, nil
}

func (s *DocumentService) queueJob(ctx context.Context, doc *models.Document, bypassCache bool) (*models.ProcessingJob, error) {
	job := &models.ProcessingJob{
		DocumentID:  doc.ID,
		Status:      models.JobStatusPending,
		Stage:       models.StageQueued,
		BypassCache: bypassCache,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The job stays pending and is picked up again on the next start
		logger.WithJob(job.ID, doc.ID).WithError(err).Warn("Failed to enqueue job")
	}
	return job, nil
}

// Get returns a document owned by ownerID
func (s *DocumentService) Get(ctx context.Context, ownerID, id uint) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return doc, nil
}

type ListResult struct {
	Documents []models.Document
	Total     int64
	Page      int
	Limit     int
}

func (s *DocumentService) List(ctx context.Context, ownerID uint, status string, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	docs, total, err := s.store.ListDocuments(ctx, DocumentFilter{
		OwnerID: ownerID,
		Status:  status,
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return &ListResult{Documents: docs, Total: total, Page: page, Limit: limit}, nil
}

// Delete removes a document with its file, chunks, analysis, jobs and cached results
func (s *DocumentService) Delete(ctx context.Context, ownerID, id uint) error {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if doc.Status == models.DocumentStatusProcessing {
		return ErrNotReady
	}
	return s.remove(ctx, doc)
}

func (s *DocumentService) remove(ctx context.Context, doc *models.Document) error {
	if err := s.vectors.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.analysis.Invalidate(ctx, doc)
	s.removeFile(doc.StoragePath)

	logger.WithDocument(doc.ID, doc.Filename).Info("Document deleted")
	return nil
}

// Reanalyze queues a fresh run that skips the analysis cache
func (s *DocumentService) Reanalyze(ctx context.Context, ownerID, id uint) (*models.ProcessingJob, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	reset, err := s.store.UpdateDocumentIfStatus(ctx, doc.ID,
		[]models.DocumentStatus{models.DocumentStatusCompleted, models.DocumentStatusError},
		map[string]interface{}{
			"status":        models.DocumentStatusPending,
			"stage":         models.StageQueued,
			"progress":      0,
			"error_message": "",
		})
	if err != nil {
		return nil, fmt.Errorf("reset document: %w", err)
	}
	if !reset {
		return nil, ErrNotReady
	}
	s.analysis.Invalidate(ctx, doc)
	return s.queueJob(ctx, doc, true)
}

func (s *DocumentService) Jobs(ctx context.Context, ownerID, id uint) ([]models.ProcessingJob, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, id)
	if jobs == nil && err == nil {
		jobs = []models.ProcessingJob{}
	}
	return jobs, err
}

// Analysis returns the finished report. ErrNotReady carries on while the
// pipeline is still running; a failed document has no report.
func (s *DocumentService) Analysis(ctx context.Context, ownerID, id uint) (*models.Document, *models.AnalysisResult, error) {
	doc, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	switch doc.Status {
	case models.DocumentStatusPending, models.DocumentStatusProcessing:
		return doc, nil, ErrNotReady
	case models.DocumentStatusError:
		return doc, nil, ErrNotFound
	}
	result, err := s.analysis.Get(ctx, doc.ID)
	return doc, result, err
}

func (s *DocumentService) removeFile(path string) {
	if path == "" {
		return
	}
	if err := s.files.Delete(path); err != nil {
		logger.WithError(err, "document_service").WithField("path", path).Warn("Failed to remove stored file")
	}
}

func typeMatches(detected *mimetype.MIME, accepted []string) bool {
	for m := detected; m != nil; m = m.Parent() {
		for _, a := range accepted {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

func containsMalicious(head []byte) bool {
	if len(head) > maliciousScan {
		head = head[:maliciousScan]
	}
	lower := bytes.ToLower(head)
	for _, marker := range maliciousMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.n += int64(n)
	}
	return n, err
}
