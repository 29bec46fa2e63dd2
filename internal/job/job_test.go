package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

type fakeSummaries struct {
	sum  *model.Summary
	days int
}

func (f *fakeSummaries) Generate(ctx context.Context, windowDays int) *model.Summary {
	f.days = windowDays
	return f.sum
}

func TestSummaryJob(t *testing.T) {
	ok := &fakeSummaries{sum: &model.Summary{Status: model.SummaryNoNotes, Persisted: true, Key: "summary_x.md"}}
	j := NewSummaryJob(ok, 2)
	require.Equal(t, SummaryJobName, j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, 2, ok.days)

	failed := &fakeSummaries{sum: &model.Summary{Status: model.SummaryFailed, Err: errors.New("llm down")}}
	require.EqualError(t, NewSummaryJob(failed, 1).Run(context.Background()), "llm down")

	unsaved := &fakeSummaries{sum: &model.Summary{Status: model.SummaryOK, PersistErr: errors.New("disk full")}}
	require.EqualError(t, NewSummaryJob(unsaved, 1).Run(context.Background()), "disk full")
}

type fakeIngester struct{ err error }

func (f fakeIngester) IngestAll(ctx context.Context) (*model.IngestReport, error) {
	return &model.IngestReport{}, f.err
}

func TestIngestJob(t *testing.T) {
	require.NoError(t, NewIngestJob(fakeIngester{}).Run(context.Background()))
	require.Error(t, NewIngestJob(fakeIngester{err: errors.New("x")}).Run(context.Background()))
	require.NoError(t, NewIngestJob(nil).Run(context.Background()))
}

type fakeCleaner struct{ cutoff int64 }

func (f *fakeCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	now := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	cleaner := &fakeCleaner{}
	j := NewEmbeddingCacheCleanupJob(cleaner, 0)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), cleaner.cutoff)
}
