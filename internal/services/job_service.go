package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/regcheck/backend/internal/chunking"
	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/embedding"
	"github.com/regcheck/backend/internal/extraction"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/notifier"
	"github.com/regcheck/backend/internal/vectorstore"
)

const jobTimeout = 30 * time.Minute

// Progress reported at the start of each pipeline stage
const (
	progressExtracting = 10
	progressChunking   = 25
	progressEmbedding  = 30
	progressEmbedded   = 60
	progressIndexing   = 65
	progressRetrieving = 75
	progressAnalyzing  = 85
	progressSaving     = 95
	progressCompleted  = 100
)

type JobService struct {
	store     Store
	extractor extraction.Extractor
	chunker   *chunking.Chunker
	embedder  embedding.Embedder
	vectors   vectorstore.Store
	retrieval *RetrievalService
	analysis  *AnalysisService
	notifier  notifier.Publisher

	jobQueue    chan uint
	workerCount int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// JobDeps are the pipeline stages the workers drive
type JobDeps struct {
	Store     Store
	Extractor extraction.Extractor
	Chunker   *chunking.Chunker
	Embedder  embedding.Embedder
	Vectors   vectorstore.Store
	Retrieval *RetrievalService
	Analysis  *AnalysisService
	Notifier  notifier.Publisher
}

// NewJobService creates the job service and starts its workers
func NewJobService(deps JobDeps, cfg config.WorkerConfig) *JobService {
	workers := cfg.Count
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	js := &JobService{
		store:       deps.Store,
		extractor:   deps.Extractor,
		chunker:     deps.Chunker,
		embedder:    deps.Embedder,
		vectors:     deps.Vectors,
		retrieval:   deps.Retrieval,
		analysis:    deps.Analysis,
		notifier:    deps.Notifier,
		jobQueue:    make(chan uint, queueSize),
		workerCount: workers,
		stopChan:    make(chan struct{}),
	}

	// Start workers
	for i := 0; i < js.workerCount; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}

	return js
}

// worker processes jobs from the queue
func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		select {
		case jobID := <-js.jobQueue:
			logger.Info("Worker processing job", map[string]interface{}{
				"workerID": id,
				"jobID":    jobID,
			})
			js.ProcessJob(jobID)

		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		}
	}
}

// Enqueue hands a persisted job to the workers, waiting while the queue is full
func (js *JobService) Enqueue(ctx context.Context, jobID uint) error {
	select {
	case <-js.stopChan:
		return ErrQueueClosed
	default:
	}

	select {
	case js.jobQueue <- jobID:
		return nil
	case <-js.stopChan:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumePending re-enqueues jobs a previous process left unfinished
func (js *JobService) ResumePending(ctx context.Context) (int, error) {
	jobs, err := js.store.UnfinishedJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load unfinished jobs: %w", err)
	}
	for _, job := range jobs {
		if err := js.Enqueue(ctx, job.ID); err != nil {
			return 0, err
		}
	}
	if len(jobs) > 0 {
		logger.Info("Re-enqueued unfinished jobs", map[string]interface{}{"count": len(jobs)})
	}
	return len(jobs), nil
}

// Stop lets the workers finish their current job and waits for them
func (js *JobService) Stop() {
	js.stopOnce.Do(func() { close(js.stopChan) })
	js.wg.Wait()
}

// ProcessJob runs the whole pipeline for one job. Failures are recorded on
// the document and job and pushed to subscribers.
func (js *JobService) ProcessJob(jobID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	job, err := js.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("Failed to load job", map[string]interface{}{"jobID": jobID, "error": err.Error()})
		return
	}
	if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
		return
	}

	doc, err := js.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		js.updateJobStatus(ctx, jobID, models.JobStatusFailed, "Document not found")
		return
	}

	run := &pipelineRun{js: js, ctx: ctx, job: job, doc: doc}
	if err := run.execute(); err != nil {
		run.fail(err)
	}
}

type pipelineRun struct {
	js       *JobService
	ctx      context.Context
	job      *models.ProcessingJob
	doc      *models.Document
	progress int
}

func (r *pipelineRun) execute() error {
	js, ctx, doc := r.js, r.ctx, r.doc
	log := logger.WithJob(r.job.ID, doc.ID)

	now := time.Now()
	js.notifier.BeginRun(doc.ID)
	js.updateJob(ctx, r.job.ID, map[string]interface{}{
		"status":     models.JobStatusRunning,
		"attempts":   r.job.Attempts + 1,
		"started_at": &now,
		"error":      "",
	})
	log.Info("Starting document pipeline")

	r.advance(models.StageExtracting, progressExtracting, "Extracting text")
	text, err := js.extractor.Extract(ctx, doc.StoragePath, doc.MimeType)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	r.advance(models.StageChunking, progressChunking, "Splitting document into chunks")
	pieces := js.chunker.Split(text)
	if len(pieces) == 0 {
		return fmt.Errorf("chunking failed: %w", extraction.ErrNoText)
	}

	r.advance(models.StageEmbedding, progressEmbedding, fmt.Sprintf("Embedding %d chunks", len(pieces)))
	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, p := range pieces {
		vec, err := js.embedder.Embed(ctx, p.Content)
		if err != nil {
			return fmt.Errorf("embedding chunk %d failed: %w", p.Position, err)
		}
		chunks[i] = vectorstore.Chunk{
			Position:  p.Position,
			Content:   p.Content,
			StartChar: p.StartChar,
			EndChar:   p.EndChar,
			Embedding: vec,
		}
		step := progressEmbedding + (i+1)*(progressEmbedded-progressEmbedding)/len(pieces)
		if step > r.progress {
			r.advance(models.StageEmbedding, step, fmt.Sprintf("Embedded %d of %d chunks", i+1, len(pieces)))
		}
	}

	r.advance(models.StageIndexing, progressIndexing, "Indexing chunks")
	if err := js.vectors.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	js.updateDocument(ctx, doc.ID, map[string]interface{}{"chunk_count": len(chunks)})

	r.advance(models.StageRetrieving, progressRetrieving, "Retrieving regulatory context")
	matches, err := js.retrieval.Retrieve(ctx, js.retrieval.QueryVector(chunks))
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	log.WithField("passages", len(matches)).Info("Retrieved regulatory passages")

	r.advance(models.StageAnalyzing, progressAnalyzing, "Running compliance analysis")
	report, cached, err := js.analysis.Analyze(ctx, doc, r.job.ID, text, matches, r.job.BypassCache)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	r.advance(models.StageSaving, progressSaving, "Saving analysis")
	if _, err := js.analysis.Save(ctx, doc.ID, report, matches, cached); err != nil {
		return err
	}

	done := time.Now()
	js.updateDocument(ctx, doc.ID, map[string]interface{}{
		"status":        models.DocumentStatusCompleted,
		"stage":         models.StageCompleted,
		"progress":      progressCompleted,
		"error_message": "",
		"processed_at":  &done,
	})
	js.updateJob(ctx, r.job.ID, map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"stage":        models.StageCompleted,
		"progress":     progressCompleted,
		"completed_at": &done,
	})
	js.notifier.PublishStatus(doc.ID, string(models.DocumentStatusCompleted), models.StageCompleted, progressCompleted, "Analysis complete")

	log.WithFields(map[string]interface{}{
		"chunks":    len(chunks),
		"cached":    cached,
		"riskScore": report.RiskScore,
	}).Info("Document pipeline completed")
	return nil
}

// advance records and publishes the start of a stage
func (r *pipelineRun) advance(stage string, progress int, message string) {
	if progress < r.progress {
		progress = r.progress
	}
	r.progress = progress

	r.js.updateDocument(r.ctx, r.doc.ID, map[string]interface{}{
		"status":   models.DocumentStatusProcessing,
		"stage":    stage,
		"progress": progress,
	})
	r.js.updateJobProgress(r.ctx, r.job.ID, stage, progress)
	r.js.notifier.PublishStatus(r.doc.ID, string(models.DocumentStatusProcessing), stage, progress, message)
}

func (r *pipelineRun) fail(err error) {
	js, doc := r.js, r.doc
	msg := userMessage(err)

	logger.WithJob(r.job.ID, doc.ID).WithError(err).Error("Document pipeline failed")

	// The run context may be the reason for the failure
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js.updateDocument(ctx, doc.ID, map[string]interface{}{
		"status":        models.DocumentStatusError,
		"stage":         models.StageFailed,
		"error_message": msg,
	})
	js.updateJobStatus(ctx, r.job.ID, models.JobStatusFailed, err.Error())
	js.notifier.PublishStatus(doc.ID, string(models.DocumentStatusError), models.StageFailed, r.progress, msg)
	js.notifier.PublishError(doc.ID, msg)
}

// userMessage hides internal detail for errors users can do nothing about
func userMessage(err error) string {
	switch {
	case errors.Is(err, extraction.ErrNoText):
		return "No text could be extracted from the document"
	case errors.Is(err, extraction.ErrUnsupportedType):
		return "Unsupported document type"
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing timed out"
	default:
		return err.Error()
	}
}

func (js *JobService) updateDocument(ctx context.Context, documentID uint, fields map[string]interface{}) {
	if err := js.store.UpdateDocument(ctx, documentID, fields); err != nil {
		logger.Error("Failed to update document", map[string]interface{}{"documentID": documentID, "error": err.Error()})
	}
}

func (js *JobService) updateJob(ctx context.Context, jobID uint, fields map[string]interface{}) {
	if err := js.store.UpdateJob(ctx, jobID, fields); err != nil {
		logger.Error("Failed to update job", map[string]interface{}{"jobID": jobID, "error": err.Error()})
	}
}

// updateJobProgress updates the job progress
func (js *JobService) updateJobProgress(ctx context.Context, jobID uint, stage string, progress int) {
	js.updateJob(ctx, jobID, map[string]interface{}{"stage": stage, "progress": progress})
}

// updateJobStatus updates the job status
func (js *JobService) updateJobStatus(ctx context.Context, jobID uint, status models.JobStatus, errorMsg string) {
	fields := map[string]interface{}{"status": status}
	if errorMsg != "" {
		fields["error"] = errorMsg
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now()
		fields["completed_at"] = &now
	}
	if status == models.JobStatusFailed {
		fields["stage"] = models.StageFailed
	}
	js.updateJob(ctx, jobID, fields)
}

// GetJobStatus returns one job
func (js *JobService) GetJobStatus(ctx context.Context, jobID uint) (*models.ProcessingJob, error) {
	return js.store.GetJob(ctx, jobID)
}
