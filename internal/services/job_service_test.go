package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/notifier"
)

func progressOf(events []notifier.Event) []int {
	out := make([]int, 0, len(events))
	for _, ev := range events {
		out = append(out, *ev.Progress)
	}
	return out
}

func TestPipelineCompletesDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.upload(t, 1, "whitepaper.txt", whitepaper)

	h.jobs.ProcessJob(res.Job.ID)

	doc, err := h.store.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusCompleted, doc.Status)
	assert.Equal(t, models.StageCompleted, doc.Stage)
	assert.Equal(t, 100, doc.Progress)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Equal(t, len(h.vectors.Chunks(doc.ID)), doc.ChunkCount)

	job, err := h.store.GetJob(ctx, res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Attempts)

	require.Equal(t, 1, h.analyzer.callCount())
	in := h.analyzer.inputs[0]
	assert.Equal(t, "whitepaper.txt", in.Filename)
	assert.Contains(t, in.Text, "Team allocation")
	require.NotEmpty(t, in.Matches)
	assert.Equal(t, 1, in.Matches[0].Rank)
	assert.Equal(t, "Art. 6", in.Matches[0].Passage.Reference)
	assert.Len(t, in.Matches, 2)

	events := h.publisher.statusEvents(doc.ID)
	require.NotEmpty(t, events)
	assert.IsNonDecreasing(t, progressOf(events))
	last := events[len(events)-1]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 100, *last.Progress)

	stages := map[string]bool{}
	for _, ev := range events {
		stages[ev.Stage] = true
	}
	for _, s := range []string{models.StageExtracting, models.StageChunking, models.StageEmbedding,
		models.StageIndexing, models.StageRetrieving, models.StageAnalyzing, models.StageSaving} {
		assert.True(t, stages[s], "missing stage %s", s)
	}
}

func TestPipelineFailureMarksDocumentError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.err = errUpstream
	res := h.upload(t, 1, "whitepaper.txt", whitepaper)

	h.jobs.ProcessJob(res.Job.ID)

	doc, err := h.store.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "upstream unavailable")

	job, err := h.store.GetJob(ctx, res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)

	events := h.publisher.statusEvents(doc.ID)
	assert.IsNonDecreasing(t, progressOf(events))
	assert.Equal(t, "error", events[len(events)-1].Status)

	h.publisher.mu.Lock()
	defer h.publisher.mu.Unlock()
	var sawError bool
	for _, ev := range h.publisher.events {
		if ev.Type == notifier.TypeError && ev.DocumentID == doc.ID {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestPipelineFailsOnEmptyText(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, 1, "blank.txt", "   \n\n   \t ")

	h.jobs.ProcessJob(res.Job.ID)

	doc, err := h.store.GetDocument(context.Background(), res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusError, doc.Status)
	assert.Equal(t, "No text could be extracted from the document", doc.ErrorMessage)
	assert.Zero(t, h.analyzer.callCount())
}

func TestPipelineFailsWhenEmbeddingFails(t *testing.T) {
	h := newHarness(t)
	h.embedder.err = errUpstream
	res := h.upload(t, 1, "a.txt", whitepaper)

	h.jobs.ProcessJob(res.Job.ID)

	doc, err := h.store.GetDocument(context.Background(), res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusError, doc.Status)
	assert.Empty(t, h.vectors.Chunks(doc.ID))
}

func TestCachedAnalysisSkipsModel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.upload(t, 1, "a.txt", whitepaper)
	h.jobs.ProcessJob(first.Job.ID)
	second := h.upload(t, 2, "copy.txt", whitepaper)
	h.jobs.ProcessJob(second.Job.ID)

	assert.Equal(t, 1, h.analyzer.callCount())

	a, err := h.store.GetAnalysis(ctx, first.Document.ID)
	require.NoError(t, err)
	b, err := h.store.GetAnalysis(ctx, second.Document.ID)
	require.NoError(t, err)
	assert.False(t, a.Cached)
	assert.True(t, b.Cached)
	assert.Equal(t, a.Summary, b.Summary)
	assert.Equal(t, a.RiskScore, b.RiskScore)
}

func TestReanalyzeBypassesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.upload(t, 1, "a.txt", whitepaper)
	h.jobs.ProcessJob(res.Job.ID)

	job, err := h.documents.Reanalyze(ctx, 1, res.Document.ID)
	require.NoError(t, err)
	h.jobs.ProcessJob(job.ID)

	assert.Equal(t, 2, h.analyzer.callCount())
	assert.Equal(t, 2, h.publisher.runs[res.Document.ID])
}

func TestWorkersProcessQueuedJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.upload(t, 1, "a.txt", whitepaper)

	require.NoError(t, h.jobs.Enqueue(ctx, res.Job.ID))

	require.Eventually(t, func() bool {
		doc, err := h.store.GetDocument(ctx, res.Document.ID)
		return err == nil && doc.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestResumePendingRequeuesUnfinishedJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.upload(t, 1, "a.txt", whitepaper)

	n, err := h.jobs.ResumePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		job, err := h.store.GetJob(ctx, res.Job.ID)
		return err == nil && job.Status == models.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueueAfterStop(t *testing.T) {
	h := newHarness(t)
	h.jobs.Stop()
	assert.ErrorIs(t, h.jobs.Enqueue(context.Background(), 1), ErrQueueClosed)
}

func TestProcessJobIgnoresFinishedJobs(t *testing.T) {
	h := newHarness(t)
	res := h.upload(t, 1, "a.txt", whitepaper)
	h.jobs.ProcessJob(res.Job.ID)
	h.jobs.ProcessJob(res.Job.ID)
	assert.Equal(t, 1, h.analyzer.callCount())
}
