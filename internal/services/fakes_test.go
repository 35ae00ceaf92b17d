package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/chunking"
	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/extraction"
	"github.com/regcheck/backend/internal/llm"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/notifier"
	"github.com/regcheck/backend/internal/storage"
	"github.com/regcheck/backend/internal/vectorstore"
)

// memStore is an in-memory Store
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	docs     map[uint]*models.Document
	jobs     map[uint]*models.ProcessingJob
	analyses map[uint]*models.AnalysisResult
	failDoc  error
}

func newMemStore() *memStore {
	return &memStore{
		docs:     make(map[uint]*models.Document),
		jobs:     make(map[uint]*models.ProcessingJob),
		analyses: make(map[uint]*models.AnalysisResult),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDoc != nil {
		return s.failDoc
	}
	doc.ID = s.id()
	doc.CreatedAt = time.Now()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memStore) GetDocument(ctx context.Context, id uint) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Document
	for _, d := range s.docs {
		if d.OwnerID == f.OwnerID && (f.Status == "" || string(d.Status) == f.Status) {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (s *memStore) UpdateDocument(ctx context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		applyFields(doc, fields)
	}
	return nil
}

func (s *memStore) UpdateDocumentIfStatus(ctx context.Context, id uint, statuses []models.DocumentStatus, fields map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return false, nil
	}
	for _, st := range statuses {
		if doc.Status == st {
			applyFields(doc, fields)
			return true, nil
		}
	}
	return false, nil
}

func applyFields(doc *models.Document, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "status":
			doc.Status = v.(models.DocumentStatus)
		case "stage":
			doc.Stage = v.(string)
		case "progress":
			doc.Progress = v.(int)
		case "error_message":
			doc.ErrorMessage = v.(string)
		case "chunk_count":
			doc.ChunkCount = v.(int)
		case "processed_at":
			doc.ProcessedAt = v.(*time.Time)
		}
	}
}

func (s *memStore) DeleteDocument(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.analyses, id)
	for jid, j := range s.jobs {
		if j.DocumentID == id {
			delete(s.jobs, jid)
		}
	}
	return nil
}

func (s *memStore) DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.docs {
		if d.CreatedAt.Before(cutoff) && d.IsTerminal() {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.id()
	job.CreatedAt = time.Now()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id uint) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJob(ctx context.Context, id uint, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "status":
			job.Status = v.(models.JobStatus)
		case "stage":
			job.Stage = v.(string)
		case "progress":
			job.Progress = v.(int)
		case "error":
			job.Error = v.(string)
		case "attempts":
			job.Attempts = v.(int)
		}
	}
	return nil
}

func (s *memStore) ListJobs(ctx context.Context, documentID uint) ([]models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range s.jobs {
		if j.DocumentID == documentID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) UnfinishedJobs(ctx context.Context) ([]models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProcessingJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending || j.Status == models.JobStatusRunning {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memStore) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.ID = s.id()
	cp := *result
	s.analyses[result.DocumentID] = &cp
	return nil
}

func (s *memStore) GetAnalysis(ctx context.Context, documentID uint) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// letterEmbedder maps text to letter frequencies, enough for cosine search
type letterEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *letterEmbedder) Model() string  { return "letters" }
func (e *letterEmbedder) Dimension() int { return 26 }

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return letterVector(text), nil
}

func letterVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  int
	inputs []llm.AnalysisInput
	err    error
}

func (a *fakeAnalyzer) ProviderName() string { return "fake" }
func (a *fakeAnalyzer) Model() string        { return "fake-1" }

func (a *fakeAnalyzer) Analyze(ctx context.Context, in llm.AnalysisInput) (*llm.AnalysisReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.inputs = append(a.inputs, in)
	if a.err != nil {
		return nil, a.err
	}
	return &llm.AnalysisReport{
		Summary:         "Token allocation lacks disclosure",
		RiskScore:       70,
		OverallSeverity: "high",
		Issues: []llm.Issue{{
			Severity:            "high",
			Category:            "disclosure",
			Description:         "Team allocation vesting not disclosed",
			RegulationReference: "MiCA Art. 6",
		}},
		Recommendations: []string{"Disclose vesting schedule"},
		Provider:        "fake",
		Model:           "fake-1",
		PromptVersion:   llm.PromptVersion,
	}, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// recordingPublisher keeps every status event for later inspection
type recordingPublisher struct {
	mu     sync.Mutex
	runs   map[uint]int
	events []notifier.Event
}

func (p *recordingPublisher) BeginRun(documentID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runs == nil {
		p.runs = make(map[uint]int)
	}
	p.runs[documentID]++
}

func (p *recordingPublisher) PublishStatus(documentID uint, status, stage string, progress int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, notifier.StatusEvent(documentID, status, stage, progress, message))
}

func (p *recordingPublisher) PublishError(documentID uint, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, notifier.ErrorEvent(documentID, msg))
}

func (p *recordingPublisher) statusEvents(documentID uint) []notifier.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifier.Event
	for _, ev := range p.events {
		if ev.DocumentID == documentID && ev.Type == notifier.TypeStatus {
			out = append(out, ev)
		}
	}
	return out
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

type harness struct {
	store     *memStore
	files     *storage.LocalFileStore
	vectors   *vectorstore.MemoryStore
	cache     *cache.TieredCache
	embedder  *letterEmbedder
	analyzer  *fakeAnalyzer
	publisher *recordingPublisher
	queue     *fakeQueue
	analysis  *AnalysisService
	retrieval *RetrievalService
	documents *DocumentService
	jobs      *JobService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	files, err := storage.NewLocalFileStore(t.TempDir())
	require.NoError(t, err)
	chunker, err := chunking.New(chunking.DefaultConfig())
	require.NoError(t, err)

	h := &harness{
		store:     newMemStore(),
		files:     files,
		vectors:   vectorstore.NewMemoryStore(),
		cache:     cache.NewTieredCache(nil, 100, time.Hour),
		embedder:  &letterEmbedder{},
		analyzer:  &fakeAnalyzer{},
		publisher: &recordingPublisher{},
		queue:     &fakeQueue{},
	}

	_, err = h.vectors.AddPassages(context.Background(), []vectorstore.Passage{
		{Source: "MiCA", Reference: "Art. 6", Content: "token allocation vesting disclosure", Embedding: letterVector("token allocation vesting disclosure")},
		{Source: "MiCA", Reference: "Art. 6", Content: "token allocation vesting disclosure", Embedding: letterVector("token allocation vesting disclosure")},
		{Source: "SEC", Reference: "Howey", Content: "investment contract expectation of profit", Embedding: letterVector("investment contract expectation of profit")},
	})
	require.NoError(t, err)

	h.analysis = NewAnalysisService(h.analyzer, h.store, h.cache, time.Hour)
	h.retrieval = NewRetrievalService(h.vectors, config.VectorConfig{TopK: 5, MinSimilarity: 0.1, QueryChunks: 8})
	h.documents = NewDocumentService(h.store, h.files, h.queue, h.vectors, h.analysis, config.UploadConfig{
		MaxSize:           1024 * 1024,
		AllowedExtensions: []string{".pdf", ".docx", ".txt"},
	})
	h.jobs = NewJobService(JobDeps{
		Store:     h.store,
		Extractor: extraction.NewFileExtractor(),
		Chunker:   chunker,
		Embedder:  h.embedder,
		Vectors:   h.vectors,
		Retrieval: h.retrieval,
		Analysis:  h.analysis,
		Notifier:  h.publisher,
	}, config.WorkerConfig{Count: 1, QueueSize: 10})
	t.Cleanup(h.jobs.Stop)
	return h
}

const whitepaper = "The token supply is fixed at one billion. Team allocation is twenty percent. " +
	"Vesting starts after twelve months. Holders receive a share of protocol fees."

func (h *harness) upload(t *testing.T, owner uint, name, content string) *UploadResult {
	t.Helper()
	res, err := h.documents.Upload(context.Background(), UploadInput{
		OwnerID:  owner,
		Filename: name,
		Size:     int64(len(content)),
		Content:  strings.NewReader(content),
	})
	require.NoError(t, err)
	return res
}

var errUpstream = errors.New("upstream unavailable")
