package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/llm"
	"github.com/regcheck/backend/internal/logger"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/vectorstore"
)

// Analyzer produces a compliance report; satisfied by *llm.Client
type Analyzer interface {
	Analyze(ctx context.Context, in llm.AnalysisInput) (*llm.AnalysisReport, error)
	ProviderName() string
	Model() string
}

type AnalysisService struct {
	analyzer Analyzer
	store    Store
	cache    cache.Cache
	ttl      time.Duration
}

func NewAnalysisService(analyzer Analyzer, store Store, c cache.Cache, ttl time.Duration) *AnalysisService {
	return &AnalysisService{analyzer: analyzer, store: store, cache: c, ttl: ttl}
}

// AnalysisKey identifies a report by document content and the model that wrote it
func (s *AnalysisService) AnalysisKey(contentHash string) string {
	return cache.Key(cache.NamespaceAnalysis, contentHash, s.analyzer.ProviderName(), s.analyzer.Model(), llm.PromptVersion)
}

func documentKey(documentID uint) string {
	return cache.Key(cache.NamespaceDocument, "analysis", strconv.FormatUint(uint64(documentID), 10))
}

// Analyze returns the report for the document text, reusing a cached report
// for identical content unless bypass is set. The bool reports a cache hit.
func (s *AnalysisService) Analyze(ctx context.Context, doc *models.Document, jobID uint, text string, matches []vectorstore.Match, bypass bool) (*llm.AnalysisReport, bool, error) {
	in := llm.AnalysisInput{
		DocumentID: doc.ID,
		JobID:      jobID,
		Filename:   doc.Filename,
		Text:       text,
		Matches:    matches,
	}
	key := s.AnalysisKey(doc.ContentHash)

	if bypass {
		report, err := s.analyzer.Analyze(ctx, in)
		if err != nil {
			return nil, false, err
		}
		if err := s.cache.Set(ctx, key, report, s.ttl); err != nil {
			logger.WithError(err, "analysis_service").Warn("Failed to cache analysis")
		}
		return report, false, nil
	}

	report, hit, err := cache.GetOrCompute(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*llm.AnalysisReport, error) {
		return s.analyzer.Analyze(ctx, in)
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		logger.WithDocument(doc.ID, doc.Filename).Info("Using cached compliance analysis")
	}
	return report, hit, nil
}

// Save persists the report as the document's analysis
func (s *AnalysisService) Save(ctx context.Context, documentID uint, report *llm.AnalysisReport, matches []vectorstore.Match, cached bool) (*models.AnalysisResult, error) {
	passages, err := json.Marshal(matches)
	if err != nil {
		return nil, fmt.Errorf("encode passages: %w", err)
	}

	result := &models.AnalysisResult{
		DocumentID:      documentID,
		Summary:         report.Summary,
		RiskScore:       report.RiskScore,
		OverallSeverity: report.OverallSeverity,
		Recommendations: pq.StringArray(report.Recommendations),
		Passages:        datatypes.JSON(passages),
		Provider:        report.Provider,
		Model:           report.Model,
		PromptVersion:   report.PromptVersion,
		Cached:          cached,
	}
	for _, issue := range report.Issues {
		result.Issues = append(result.Issues, models.ComplianceIssue{
			Severity:            issue.Severity,
			Category:            issue.Category,
			Description:         issue.Description,
			RegulationReference: issue.RegulationReference,
		})
	}

	if err := s.store.SaveAnalysis(ctx, result); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	s.forgetDocument(ctx, documentID)
	return result, nil
}

// Get returns the stored analysis of a document, served from cache when possible
func (s *AnalysisService) Get(ctx context.Context, documentID uint) (*models.AnalysisResult, error) {
	result, _, err := cache.GetOrCompute(ctx, s.cache, documentKey(documentID), s.ttl, func(ctx context.Context) (*models.AnalysisResult, error) {
		return s.store.GetAnalysis(ctx, documentID)
	})
	return result, err
}

// Invalidate drops every cached entry derived from the document
func (s *AnalysisService) Invalidate(ctx context.Context, doc *models.Document) {
	keys := []string{documentKey(doc.ID)}
	if doc.ContentHash != "" {
		keys = append(keys, s.AnalysisKey(doc.ContentHash))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.WithError(err, "analysis_service").Warn("Failed to invalidate analysis cache")
	}
}

func (s *AnalysisService) forgetDocument(ctx context.Context, documentID uint) {
	if err := s.cache.Delete(ctx, documentKey(documentID)); err != nil {
		logger.WithError(err, "analysis_service").Warn("Failed to invalidate document cache")
	}
}
