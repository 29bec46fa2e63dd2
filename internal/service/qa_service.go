package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
	"github.com/sadjad6/personal-knowledge-agent/internal/retrieval"
)

const (
	NoRelevantInfo     = "I couldn't find any relevant information to answer your question."
	qaErrorPrefix      = "I encountered an error while processing your question: "
	recentUpdatesQuery = "recent updates"
	recentUpdatesK     = 20
	defaultQALimit     = 5
)

type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error)
}

type Answerer interface {
	Answer(ctx context.Context, contextText string, question string) (string, error)
}

type QAService struct {
	searcher     Searcher
	answerer     Answerer
	defaultLimit int
	maxContext   int
	now          func() time.Time
}

type QAOption func(*QAService)

// WithContextBudget bounds the context handed to the answer prompt. Whole
// chunks past the budget are left out; zero means no bound.
func WithContextBudget(maxRunes int) QAOption {
	return func(s *QAService) {
		if maxRunes > 0 {
			s.maxContext = maxRunes
		}
	}
}

func NewQAService(searcher Searcher, answerer Answerer, defaultLimit int, opts ...QAOption) *QAService {
	if defaultLimit <= 0 {
		defaultLimit = defaultQALimit
	}
	s := &QAService{
		searcher:     searcher,
		answerer:     answerer,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer never returns an error: failures are folded into the Answer with
// status failed and a readable message.
func (s *QAService) Answer(ctx context.Context, question string, limit int) *model.Answer {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	logger := logutil.GetLogger(ctx).With(zap.String("question", question), zap.Int("limit", limit))
	out := &model.Answer{Question: question}

	results, err := s.searcher.SimilaritySearch(ctx, question, limit, nil)
	if err != nil {
		logger.Error("qa retrieval failed", zap.Error(err))
		return failAnswer(out, err)
	}
	if len(results) == 0 {
		logger.Info("qa found no relevant chunks")
		out.Text = NoRelevantInfo
		out.Status = model.AnswerNoResults
		out.Sources = []string{}
		return out
	}
	if kept := retrieval.FitResults(results, s.maxContext); len(kept) < len(results) {
		logger.Warn("qa context over budget, lower ranked chunks left out",
			zap.Int("chunks", len(results)),
			zap.Int("kept", len(kept)),
			zap.Int("max_input_chars", s.maxContext))
		results = kept
	}
	rc := retrieval.Build(results)
	text, err := s.answerer.Answer(ctx, retrieval.FormatQA(rc.Results), question)
	if err != nil {
		logger.Error("qa generation failed", zap.Error(err))
		return failAnswer(out, err)
	}
	out.Text = text + retrieval.SourcesTrailer(rc.Sources)
	out.Sources = rc.Sources
	out.Status = model.AnswerOK
	logger.Info("question answered", zap.Int("chunks", len(results)), zap.Int("sources", len(rc.Sources)))
	return out
}

func failAnswer(out *model.Answer, err error) *model.Answer {
	out.Text = qaErrorPrefix + err.Error()
	out.Status = model.AnswerFailed
	out.Sources = []string{}
	out.Err = err
	return out
}

func (s *QAService) Search(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	if k <= 0 {
		k = s.defaultLimit
	}
	return s.searcher.SimilaritySearch(ctx, query, k, filter)
}

// RecentUpdates lists notes modified within the last days, one entry per
// source, newest first.
func (s *QAService) RecentUpdates(ctx context.Context, days int) ([]model.RecentUpdate, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive: %w", appErr.ErrInvalid)
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	filter := model.NewFilter().After(model.MetaLastModified, cutoff)
	results, err := s.searcher.SimilaritySearch(ctx, recentUpdatesQuery, recentUpdatesK, filter)
	if err != nil {
		logutil.GetLogger(ctx).Error("fetch recent updates failed", zap.Int("days", days), zap.Error(err))
		return nil, err
	}
	return retrieval.RecentUpdates(results), nil
}
