package service

import (
	"context"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/schedule"
)

type CollectionInspector interface {
	CollectionInfo(ctx context.Context) *model.CollectionInfo
}

type JobLister interface {
	Entries() []schedule.Entry
}

// StatusInfo is the static part of the status report, fixed at startup.
type StatusInfo struct {
	VectorStore      string   `json:"vector_store"`
	GenerationModels []string `json:"generation_models"`
	EmbeddingModel   string   `json:"embedding_model"`
	NotesDir         string   `json:"notes_dir"`
	SummaryStore     string   `json:"summary_store"`
}

type StatusReport struct {
	StatusInfo
	Collection *model.CollectionInfo `json:"collection"`
	Jobs       []schedule.Entry      `json:"jobs"`
}

type StatusService struct {
	collection CollectionInspector
	jobs       JobLister
	info       StatusInfo
}

// NewStatusService builds the status reporter. jobs may be nil when no
// scheduler runs, as in the one-shot CLI commands.
func NewStatusService(collection CollectionInspector, jobs JobLister, info StatusInfo) *StatusService {
	return &StatusService{collection: collection, jobs: jobs, info: info}
}

func (s *StatusService) Status(ctx context.Context) *StatusReport {
	report := &StatusReport{StatusInfo: s.info, Jobs: []schedule.Entry{}}
	report.Collection = s.collection.CollectionInfo(ctx)
	if s.jobs != nil {
		report.Jobs = s.jobs.Entries()
	}
	return report
}
