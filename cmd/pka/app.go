package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/ai"
	"github.com/sadjad6/personal-knowledge-agent/internal/chunker"
	"github.com/sadjad6/personal-knowledge-agent/internal/config"
	"github.com/sadjad6/personal-knowledge-agent/internal/embedcache"
	"github.com/sadjad6/personal-knowledge-agent/internal/filestore"
	"github.com/sadjad6/personal-knowledge-agent/internal/index"
	"github.com/sadjad6/personal-knowledge-agent/internal/loader"
	"github.com/sadjad6/personal-knowledge-agent/internal/repo"
	"github.com/sadjad6/personal-knowledge-agent/internal/service"
	"github.com/sadjad6/personal-knowledge-agent/internal/vectorstore"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	store     vectorstore.Store
	indexer   *index.Indexer
	loader    *loader.Loader
	cacheRepo *repo.EmbeddingCacheRepo

	qa        *service.QAService
	summaries *service.SummaryService
	ingest    *service.IngestService
	info      service.StatusInfo
}

func newApp(cfg *config.Config) (*app, error) {
	logger := logutil.GetLogger(context.Background())

	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a := &app{cfg: cfg, db: db, cacheRepo: repo.NewEmbeddingCacheRepo(db)}

	answerer, answerNames, err := buildGenerator(cfg.AI, cfg.AI.Generation)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	summarizer, summaryNames, err := buildGenerator(cfg.AI, cfg.AI.Summary)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	embedder, err := buildEmbedder(cfg.AI, cfg.AI.Embedding)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	embedder = ai.WrapRateLimitEmbedder(embedder, cfg.AI.EmbedRPS, cfg.AI.EmbedBurst)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSeconds)*time.Second)

	a.store, err = vectorstore.New(vectorstore.Config{
		Type:       cfg.VectorStore.Type,
		Collection: cfg.VectorStore.Collection,
		Dimension:  cfg.VectorStore.Dimension,
		Timeout:    cfg.VectorStore.Timeout,
		Data:       cfg.VectorStore.Data,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	chunkOpts := []chunker.Option{chunker.WithChunkSize(cfg.Chunker.Size), chunker.WithOverlap(cfg.Chunker.Overlap)}
	if len(cfg.Chunker.Separators) > 0 {
		chunkOpts = append(chunkOpts, chunker.WithSeparators(cfg.Chunker.Separators...))
	}
	splitter, err := chunker.New(chunkOpts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	a.indexer = index.New(a.store, embedder, splitter, index.Config{
		Dimension:    cfg.VectorStore.Dimension,
		BatchSize:    cfg.VectorStore.BatchSize,
		StoreTimeout: time.Duration(cfg.VectorStore.Timeout) * time.Second,
	})

	summaryStore, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	manager := ai.NewManager(answerer, summarizer, ai.ManagerConfig{Timeout: cfg.AI.Timeout})

	a.loader = loader.New(cfg.NotesDir, loader.WithMaxFileSize(int64(cfg.Ingest.MaxFileMB)<<20))
	a.qa = service.NewQAService(a.indexer, manager, cfg.QA.Limit, service.WithContextBudget(cfg.AI.MaxInputChars))
	a.summaries = service.NewSummaryService(a.indexer, manager, summaryStore, service.SummaryConfig{
		K:                 cfg.Summary.K,
		ChunksPerSource:   cfg.Summary.ChunksPerSource,
		DefaultWindowDays: cfg.Summary.WindowDays,
		MaxInputChars:     cfg.AI.MaxInputChars,
	})
	a.ingest = service.NewIngestService(a.loader, a.indexer)
	if len(summaryNames) == 0 {
		summaryNames = answerNames
	}
	a.info = service.StatusInfo{
		VectorStore:      a.store.Type(),
		GenerationModels: unique(append(append([]string{}, answerNames...), summaryNames...)),
		EmbeddingModel:   a.indexer.ModelName(),
		NotesDir:         cfg.NotesDir,
		SummaryStore:     summaryStore.Type(),
	}
	logger.Info("components initialized",
		zap.String("vector_store", a.info.VectorStore),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Strings("generation_models", a.info.GenerationModels),
		zap.String("embedding_model", a.info.EmbeddingModel),
		zap.String("notes_dir", cfg.NotesDir),
	)
	return a, nil
}

// statusService builds the status reporter. jobs is nil outside the server.
func (a *app) statusService(jobs service.JobLister) *service.StatusService {
	return service.NewStatusService(a.indexer, jobs, a.info)
}

func (a *app) Close() error {
	var errs []string
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// buildGenerator resolves a fallback chain of model refs. An empty chain
// yields a nil generator.
func buildGenerator(cfg config.AIConfig, refs []config.AIModelRef) (ai.IGenerator, []string, error) {
	entries := make([]ai.GeneratorEntry, 0, len(refs))
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		pc, ok := cfg.Provider(ref.Provider)
		if !ok {
			return nil, nil, fmt.Errorf("unknown ai provider %q", ref.Provider)
		}
		p, err := ai.NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("init ai provider %s: %w", pc.Name, err)
		}
		name := pc.Name + "/" + ref.Model
		entries = append(entries, ai.GeneratorEntry{Name: name, Generator: ai.NewGenerator(p, ref.Model)})
		names = append(names, name)
	}
	return ai.NewGroupGenerator(entries), names, nil
}

// buildEmbedder resolves the single embedding model. There is no fallback:
// every vector in a collection must come from the same model.
func buildEmbedder(cfg config.AIConfig, refs []config.AIModelRef) (ai.IEmbedder, error) {
	if len(refs) != 1 {
		return nil, fmt.Errorf("ai.embedding needs exactly one model, got %d", len(refs))
	}
	ref := refs[0]
	pc, ok := cfg.Provider(ref.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q", ref.Provider)
	}
	p, err := ai.NewEmbedProvider(pc.Type, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider %s: %w", pc.Name, err)
	}
	return ai.NewEmbedder(p, ref.Model), nil
}

func unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
