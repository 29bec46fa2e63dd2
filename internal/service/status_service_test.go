package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/schedule"
)

type staticCollection struct{ info *model.CollectionInfo }

func (s staticCollection) CollectionInfo(ctx context.Context) *model.CollectionInfo { return s.info }

type staticJobs []schedule.Entry

func (s staticJobs) Entries() []schedule.Entry { return s }

func TestStatus(t *testing.T) {
	info := StatusInfo{VectorStore: "qdrant", EmbeddingModel: "all-minilm", NotesDir: "data/notes"}
	coll := staticCollection{info: &model.CollectionInfo{Name: "personal_knowledge", Status: "green", PointsCount: 3}}

	report := NewStatusService(coll, staticJobs{{Name: "daily_summary", Spec: "0 20 * * *"}}, info).Status(context.Background())
	require.Equal(t, "qdrant", report.VectorStore)
	require.EqualValues(t, 3, report.Collection.PointsCount)
	require.Len(t, report.Jobs, 1)

	report = NewStatusService(coll, nil, info).Status(context.Background())
	require.NotNil(t, report.Jobs)
	require.Empty(t, report.Jobs)
}
