package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const SummaryJobName = "daily_summary"

type SummaryGenerator interface {
	Generate(ctx context.Context, windowDays int) *model.Summary
}

type SummaryJob struct {
	summaries  SummaryGenerator
	windowDays int
}

func NewSummaryJob(summaries SummaryGenerator, windowDays int) *SummaryJob {
	return &SummaryJob{summaries: summaries, windowDays: windowDays}
}

func (j *SummaryJob) Name() string {
	return SummaryJobName
}

func (j *SummaryJob) Run(ctx context.Context) error {
	if j.summaries == nil {
		return nil
	}
	sum := j.summaries.Generate(ctx, j.windowDays)
	if sum.Failed() {
		return sum.Err
	}
	if sum.PersistErr != nil {
		return sum.PersistErr
	}
	logutil.GetLogger(ctx).Info("daily summary saved",
		zap.String("file", sum.Key),
		zap.String("status", string(sum.Status)),
		zap.Int("notes", sum.NoteCount))
	return nil
}
