package job

import (
	"context"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const IngestJobName = "ingest"

type Ingester interface {
	IngestAll(ctx context.Context) (*model.IngestReport, error)
}

// IngestJob re-indexes the whole notes directory.
type IngestJob struct {
	ingester Ingester
}

func NewIngestJob(ingester Ingester) *IngestJob {
	return &IngestJob{ingester: ingester}
}

func (j *IngestJob) Name() string {
	return IngestJobName
}

func (j *IngestJob) Run(ctx context.Context) error {
	if j.ingester == nil {
		return nil
	}
	_, err := j.ingester.IngestAll(ctx)
	return err
}
