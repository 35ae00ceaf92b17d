package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/llm"
	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/services"
	"github.com/regcheck/backend/internal/storage"
	"github.com/regcheck/backend/internal/vectorstore"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore keeps documents, jobs, analyses and users in memory
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	docs     map[uint]*models.Document
	jobs     map[uint]*models.ProcessingJob
	analyses map[uint]*models.AnalysisResult
	users    map[uint]*models.User
}

func newMemStore() *memStore {
	return &memStore{
		docs:     make(map[uint]*models.Document),
		jobs:     make(map[uint]*models.ProcessingJob),
		analyses: make(map[uint]*models.AnalysisResult),
		users:    make(map[uint]*models.User),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
		return nil, services.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memStore) ListDocuments(ctx context.Context, f services.DocumentFilter) ([]models.Document, int64, error) {
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
		}
	}
}

func (s *memStore) DeleteDocument(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.analyses, id)
	return nil
}

func (s *memStore) DocumentsOlderThan(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	return nil, nil
}

func (s *memStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.ID = s.id()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id uint) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memStore) UpdateJob(ctx context.Context, id uint, fields map[string]interface{}) error {
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
	return nil, nil
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
		return nil, services.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *memStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.id()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) ListUsers(ctx context.Context, search string, offset, limit int) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.User
	for _, u := range s.users {
		if search == "" || strings.Contains(u.Email, search) {
			all = append(all, *u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *memStore) setStatus(id uint, status models.DocumentStatus, stage string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	d.Status = status
	d.Stage = stage
	d.Progress = progress
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []uint
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobID uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, jobID)
	return nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) ProviderName() string { return "stub" }
func (stubAnalyzer) Model() string        { return "stub-1" }

func (stubAnalyzer) Analyze(ctx context.Context, in llm.AnalysisInput) (*llm.AnalysisReport, error) {
	return &llm.AnalysisReport{Summary: "ok", RiskScore: 10, OverallSeverity: "low", Recommendations: []string{}}, nil
}

type testEnv struct {
	store     *memStore
	queue     *fakeQueue
	cache     *cache.TieredCache
	users     *services.UserService
	analysis  *services.AnalysisService
	documents *services.DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files, err := storage.NewLocalFileStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		store: newMemStore(),
		queue: &fakeQueue{},
		cache: cache.NewTieredCache(nil, 100, time.Hour),
	}
	env.users = services.NewUserService(env.store)
	env.analysis = services.NewAnalysisService(stubAnalyzer{}, env.store, env.cache, time.Hour)
	env.documents = services.NewDocumentService(env.store, files, env.queue, vectorstore.NewMemoryStore(), env.analysis, config.UploadConfig{
		MaxSize:           64 * 1024,
		AllowedExtensions: []string{".pdf", ".docx", ".txt"},
	})
	return env
}

func (env *testEnv) createUser(t *testing.T, email string, role models.UserRole) *models.User {
	t.Helper()
	u, err := env.users.Register(context.Background(), services.RegisterInput{
		Email:     email,
		Password:  "password123",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	})
	require.NoError(t, err)
	return u
}

func bearer(t *testing.T, u *models.User) string {
	t.Helper()
	token, _, err := middleware.GenerateToken(testSecret, u.ID, u.Email, string(u.Role), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r http.Handler, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
