package index

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sadjad6/personal-knowledge-agent/internal/ai"
	"github.com/sadjad6/personal-knowledge-agent/internal/chunker"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/vectorstore"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

type Config struct {
	Dimension    int
	BatchSize    int
	Concurrency  int
	StoreTimeout time.Duration
}

// Indexer owns the write path into the vector store (split, embed, replace by
// source) and the query side of similarity search.
type Indexer struct {
	store    vectorstore.Store
	embedder ai.IEmbedder
	splitter *chunker.Splitter
	cfg      Config
	now      func() time.Time

	writeMu sync.Mutex
}

func New(store vectorstore.Store, embedder ai.IEmbedder, splitter *chunker.Splitter, cfg Config) *Indexer {
	if cfg.Dimension <= 0 {
		cfg.Dimension = vectorstore.DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (idx *Indexer) ModelName() string {
	if idx.embedder == nil {
		return ""
	}
	return idx.embedder.ModelName()
}

func (idx *Indexer) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if idx.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, idx.cfg.StoreTimeout)
}

func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	sctx, cancel := idx.storeContext(ctx)
	defer cancel()
	if err := idx.store.EnsureCollection(sctx, idx.cfg.Dimension); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	logutil.GetLogger(ctx).Info("vector collection ready",
		zap.String("store", idx.store.Type()),
		zap.Int("dimension", idx.cfg.Dimension),
		zap.String("embed_model", idx.ModelName()))
	return nil
}

// IndexDocuments replaces every stored chunk of the documents' sources with
// freshly split and embedded chunks. It returns the number of chunks written.
func (idx *Indexer) IndexDocuments(ctx context.Context, docs []model.Document) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("embed_model", idx.ModelName()))
	if len(docs) == 0 {
		logger.Info("no documents to index")
		return 0, nil
	}
	now := idx.now().UTC()
	var chunks []model.Chunk
	var sources []interface{}
	seen := make(map[string]struct{})
	for i := range docs {
		doc := &docs[i]
		chunks = append(chunks, idx.splitter.SplitDocument(ctx, doc, now)...)
		if _, ok := seen[doc.Metadata.Source]; ok {
			continue
		}
		seen[doc.Metadata.Source] = struct{}{}
		sources = append(sources, doc.Metadata.Source)
	}
	if len(chunks) == 0 {
		logger.Info("documents produced no chunks", zap.Int("documents", len(docs)))
		return 0, nil
	}

	vectors, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}
	points := make([]vectorstore.Point, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, vectorstore.Point{ID: PointID(c.Metadata), Vector: vectors[i], Chunk: c})
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.deleteSources(ctx, sources); err != nil {
		return 0, fmt.Errorf("delete previous chunks: %w", err)
	}
	for start := 0; start < len(points); start += idx.cfg.BatchSize {
		end := start + idx.cfg.BatchSize
		if end > len(points) {
			end = len(points)
		}
		sctx, cancel := idx.storeContext(ctx)
		err := idx.store.Upsert(sctx, points[start:end])
		cancel()
		if err != nil {
			return start, fmt.Errorf("upsert chunks: %w", err)
		}
	}
	logger.Info("documents indexed",
		zap.Int("documents", len(docs)),
		zap.Int("sources", len(sources)),
		zap.Int("chunks", len(points)))
	return len(points), nil
}

func (idx *Indexer) embedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.cfg.Concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := idx.embedder.Embed(gctx, chunks[i].Text, ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d of %s: %w", chunks[i].Metadata.ChunkID, chunks[i].Metadata.Source, err)
			}
			if err := idx.checkDimension(vec); err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (idx *Indexer) checkDimension(vec []float32) error {
	if len(vec) != idx.cfg.Dimension {
		return fmt.Errorf("embedding dimension mismatch: model %s returned %d, collection expects %d",
			idx.ModelName(), len(vec), idx.cfg.Dimension)
	}
	return nil
}

// RemoveSources drops every chunk stored for the given sources.
func (idx *Indexer) RemoveSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(sources))
	for _, s := range sources {
		values = append(values, s)
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.deleteSources(ctx, values); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("sources removed from index", zap.Strings("sources", sources))
	return nil
}

func (idx *Indexer) deleteSources(ctx context.Context, sources []interface{}) error {
	sctx, cancel := idx.storeContext(ctx)
	defer cancel()
	return idx.store.Delete(sctx, model.NewFilter().MatchAny(model.MetaSource, sources...))
}

func (idx *Indexer) SimilaritySearch(ctx context.Context, query string, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	vec, err := idx.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := idx.checkDimension(vec); err != nil {
		return nil, err
	}
	sctx, cancel := idx.storeContext(ctx)
	defer cancel()
	results, err := idx.store.Search(sctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	logutil.GetLogger(ctx).Debug("similarity search",
		zap.String("embed_model", idx.ModelName()),
		zap.Int("k", k),
		zap.Int("results", len(results)))
	return results, nil
}

// CollectionInfo never fails; backend errors are reported in the Error field.
func (idx *Indexer) CollectionInfo(ctx context.Context) *model.CollectionInfo {
	sctx, cancel := idx.storeContext(ctx)
	defer cancel()
	info, err := idx.store.Info(sctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("read collection info failed", zap.Error(err))
		return &model.CollectionInfo{Status: "unavailable", Error: err.Error()}
	}
	return info
}

// PointID is stable for a chunk of one ingestion run, so a retried upsert
// overwrites instead of duplicating.
func PointID(md model.Metadata) string {
	name := fmt.Sprintf("%s#%d#%d", md.Source, md.ChunkID, md.IngestionTime.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
