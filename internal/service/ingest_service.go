package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

type DocumentLoader interface {
	Root() string
	Source(path string) (string, error)
	LoadDir(ctx context.Context) ([]model.Document, error)
	LoadPaths(ctx context.Context, paths []string) (docs []model.Document, skipped []string, empty []string)
}

type DocumentIndexer interface {
	IndexDocuments(ctx context.Context, docs []model.Document) (int, error)
	RemoveSources(ctx context.Context, sources []string) error
}

type IngestService struct {
	loader  DocumentLoader
	indexer DocumentIndexer
}

func NewIngestService(loader DocumentLoader, indexer DocumentIndexer) *IngestService {
	return &IngestService{loader: loader, indexer: indexer}
}

// IngestAll loads and indexes the whole notes directory.
func (s *IngestService) IngestAll(ctx context.Context) (*model.IngestReport, error) {
	docs, err := s.loader.LoadDir(ctx)
	if err != nil {
		return nil, err
	}
	return s.index(ctx, docs, nil, nil)
}

// Ingest re-indexes the given paths, relative to the notes root or absolute.
// Paths whose file no longer exists, or whose content is now blank, are
// removed from the index. An empty list means the whole directory.
func (s *IngestService) Ingest(ctx context.Context, paths []string) (*model.IngestReport, error) {
	if len(paths) == 0 {
		return s.IngestAll(ctx)
	}
	var (
		existing []string
		removed  []string
	)
	for _, p := range paths {
		source, err := s.loader.Source(p)
		if err != nil {
			existing = append(existing, p)
			continue
		}
		_, err = os.Stat(filepath.Join(s.loader.Root(), filepath.FromSlash(source)))
		if errors.Is(err, fs.ErrNotExist) {
			removed = append(removed, source)
			continue
		}
		existing = append(existing, p)
	}
	var (
		docs    []model.Document
		skipped []string
		emptied []string
	)
	if len(existing) > 0 {
		docs, skipped, emptied = s.loader.LoadPaths(ctx, existing)
		removed = append(removed, emptied...)
	}
	return s.index(ctx, docs, skipped, removed)
}

func (s *IngestService) index(ctx context.Context, docs []model.Document, skipped, removed []string) (*model.IngestReport, error) {
	logger := logutil.GetLogger(ctx)
	report := &model.IngestReport{Documents: len(docs), Skipped: skipped}
	if len(docs) > 0 {
		n, err := s.indexer.IndexDocuments(ctx, docs)
		if err != nil {
			logger.Error("index documents failed", zap.Int("documents", len(docs)), zap.Error(err))
			return nil, err
		}
		report.Chunks = n
	}
	if len(removed) > 0 {
		if err := s.indexer.RemoveSources(ctx, removed); err != nil {
			logger.Error("remove deleted sources failed", zap.Strings("sources", removed), zap.Error(err))
			return nil, err
		}
		report.Removed = removed
	}
	logger.Info("ingest finished",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("removed", len(report.Removed)))
	return report, nil
}
