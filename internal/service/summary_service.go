package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/filestore"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
	"github.com/sadjad6/personal-knowledge-agent/internal/retrieval"
)

const (
	SummaryKeyPrefix   = "summary_"
	summaryQuery       = "recent updates"
	summaryErrorPrefix = "Error generating daily summary: "
	summaryKeyLayout   = "2006-01-02_15-04-05"
	summaryTitleLayout = "2006-01-02 15:04"
	maxKeyAttempts     = 10
	maxSummaryBytes    = 4 << 20
)

type Summarizer interface {
	Summarize(ctx context.Context, notes string) (string, error)
}

type SummaryConfig struct {
	K                 int
	ChunksPerSource   int
	DefaultWindowDays int
	// MaxInputChars bounds the rendered notes; whole notes past it are left
	// out. Zero means no bound.
	MaxInputChars int
}

type SummaryService struct {
	searcher   Searcher
	summarizer Summarizer
	store      filestore.Store
	cfg        SummaryConfig
	now        func() time.Time
	running    atomic.Bool
}

func NewSummaryService(searcher Searcher, summarizer Summarizer, store filestore.Store, cfg SummaryConfig) *SummaryService {
	if cfg.K <= 0 {
		cfg.K = 50
	}
	if cfg.ChunksPerSource <= 0 {
		cfg.ChunksPerSource = 1
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = 1
	}
	return &SummaryService{
		searcher:   searcher,
		summarizer: summarizer,
		store:      store,
		cfg:        cfg,
		now:        time.Now,
	}
}

// NoNotesMessage is the summary text used when nothing was ingested in the window.
func NoNotesMessage(windowDays int) string {
	if windowDays == 1 {
		return "No new or updated notes in the last 24 hours."
	}
	return fmt.Sprintf("No new or updated notes in the last %d days.", windowDays)
}

// Generate summarizes the notes ingested within the window and persists the
// result. It never returns an error: generation failures yield status failed
// and nothing is written, persistence failures are reported in PersistErr.
// Only one generation runs at a time, whether scheduled or manual; an
// overlapping call fails with ErrJobRunning.
func (s *SummaryService) Generate(ctx context.Context, windowDays int) *model.Summary {
	if windowDays <= 0 {
		windowDays = s.cfg.DefaultWindowDays
	}
	now := s.now()
	logger := logutil.GetLogger(ctx).With(zap.Int("window_days", windowDays))
	out := &model.Summary{GeneratedAt: now}

	if !s.running.CompareAndSwap(false, true) {
		logger.Info("summary skipped: already running")
		return failSummary(out, fmt.Errorf("summary: %w", appErr.ErrJobRunning))
	}
	defer s.running.Store(false)

	cutoff := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	filter := model.NewFilter().After(model.MetaIngestionTime, cutoff)
	results, err := s.searcher.SimilaritySearch(ctx, summaryQuery, s.cfg.K, filter)
	if err != nil {
		logger.Error("summary retrieval failed", zap.Error(err))
		return failSummary(out, err)
	}
	notes := retrieval.CollectNotes(results, s.cfg.ChunksPerSource)
	if len(notes) == 0 {
		logger.Info("no notes in summary window")
		out.Text = NoNotesMessage(windowDays)
		out.Status = model.SummaryNoNotes
	} else {
		if kept := retrieval.FitNotes(notes, s.cfg.MaxInputChars); len(kept) < len(notes) {
			logger.Warn("summary input over budget, later notes left out",
				zap.Int("notes", len(notes)),
				zap.Int("kept", len(kept)),
				zap.Int("max_input_chars", s.cfg.MaxInputChars))
			notes = kept
		}
		text, err := s.summarizer.Summarize(ctx, retrieval.FormatNotes(notes))
		if err != nil {
			logger.Error("summary generation failed", zap.Int("notes", len(notes)), zap.Error(err))
			return failSummary(out, err)
		}
		out.Text = text
		out.Status = model.SummaryOK
		out.NoteCount = len(notes)
	}

	key, err := s.persist(ctx, now, out.Text)
	if err != nil {
		logger.Error("persist summary failed", zap.Error(err))
		out.PersistErr = err
		return out
	}
	out.Key = key
	out.Persisted = true
	logger.Info("summary generated", zap.String("file", key), zap.Int("notes", out.NoteCount), zap.String("status", string(out.Status)))
	return out
}

func failSummary(out *model.Summary, err error) *model.Summary {
	out.Text = summaryErrorPrefix + err.Error()
	out.Status = model.SummaryFailed
	out.Err = err
	return out
}

// persist writes the summary under a timestamped key. A key taken by an
// earlier run in the same second gets a numeric suffix instead of being
// overwritten.
func (s *SummaryService) persist(ctx context.Context, now time.Time, text string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("summary store is not configured: %w", appErr.ErrUnavailable)
	}
	content := "# Daily Summary - " + now.Format(summaryTitleLayout) + "\n\n" + text
	base := SummaryKeyPrefix + now.Format(summaryKeyLayout)
	for i := 0; i < maxKeyAttempts; i++ {
		key := base + ".md"
		if i > 0 {
			key = fmt.Sprintf("%s_%d.md", base, i)
		}
		err := s.store.Save(ctx, key, strings.NewReader(content), int64(len(content)))
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, filestore.ErrExists) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free key for %s: %w", base, appErr.ErrConflict)
}

// List returns stored summaries, newest first.
func (s *SummaryService) List(ctx context.Context) ([]filestore.Object, error) {
	if s.store == nil {
		return nil, fmt.Errorf("summary store is not configured: %w", appErr.ErrUnavailable)
	}
	objs, err := s.store.List(ctx, SummaryKeyPrefix)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(objs)-1; i < j; i, j = i+1, j-1 {
		objs[i], objs[j] = objs[j], objs[i]
	}
	return objs, nil
}

func (s *SummaryService) Read(ctx context.Context, key string) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("summary store is not configured: %w", appErr.ErrUnavailable)
	}
	if !strings.HasPrefix(key, SummaryKeyPrefix) {
		return "", fmt.Errorf("not a summary key: %w", appErr.ErrInvalid)
	}
	if err := filestore.ValidateKey(key); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), appErr.ErrInvalid)
	}
	rc, err := s.store.Open(ctx, key)
	if errors.Is(err, filestore.ErrNotFound) {
		return "", fmt.Errorf("summary %s: %w", key, appErr.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxSummaryBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
