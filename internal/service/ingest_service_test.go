package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/loader"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

type recordingIndexer struct {
	indexed []string
	removed []string
	err     error
}

func (r *recordingIndexer) IndexDocuments(ctx context.Context, docs []model.Document) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for _, d := range docs {
		r.indexed = append(r.indexed, d.Metadata.Source)
	}
	return len(docs) * 2, nil
}

func (r *recordingIndexer) RemoveSources(ctx context.Context, sources []string) error {
	r.removed = append(r.removed, sources...)
	return r.err
}

func notesDir(t *testing.T) string {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\nalpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("beta"), 0o644))
	return root
}

func TestIngestAll(t *testing.T) {
	idx := &recordingIndexer{}
	svc := NewIngestService(loader.New(notesDir(t)), idx)

	report, err := svc.Ingest(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, report.Documents)
	require.Equal(t, 4, report.Chunks)
	require.Equal(t, []string{"a.md", "sub/b.txt"}, idx.indexed)
	require.Empty(t, idx.removed)
}

func TestIngestPaths(t *testing.T) {
	root := notesDir(t)
	idx := &recordingIndexer{}
	svc := NewIngestService(loader.New(root), idx)

	report, err := svc.Ingest(context.Background(), []string{"sub/b.txt", "gone.md", "../outside.md"})
	require.NoError(t, err)
	require.Equal(t, []string{"sub/b.txt"}, idx.indexed)
	require.Equal(t, []string{"gone.md"}, idx.removed)
	require.Equal(t, []string{"gone.md"}, report.Removed)
	require.Equal(t, []string{"../outside.md"}, report.Skipped)
}

func TestIngestEmptiedFileRemoved(t *testing.T) {
	root := notesDir(t)
	idx := &recordingIndexer{}
	svc := NewIngestService(loader.New(root), idx)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("   \n"), 0o644))

	report, err := svc.Ingest(context.Background(), []string{"a.md", "sub/b.txt"})
	require.NoError(t, err)
	require.Equal(t, []string{"sub/b.txt"}, idx.indexed)
	require.Equal(t, []string{"a.md"}, idx.removed)
	require.Equal(t, []string{"a.md"}, report.Removed)
	require.Empty(t, report.Skipped)
}

func TestIngestIndexError(t *testing.T) {
	svc := NewIngestService(loader.New(notesDir(t)), &recordingIndexer{err: errors.New("qdrant down")})
	_, err := svc.IngestAll(context.Background())
	require.EqualError(t, err, "qdrant down")

	_, err = NewIngestService(loader.New(filepath.Join(t.TempDir(), "missing")), &recordingIndexer{}).IngestAll(context.Background())
	require.Error(t, err)
}
