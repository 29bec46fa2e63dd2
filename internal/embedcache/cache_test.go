package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sadjad6/personal-knowledge-agent/internal/repo"
)

type countingEmbedder struct {
	model string
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), float32(c.calls)}, nil
}

func (c *countingEmbedder) ModelName() string {
	return c.model
}

func TestLruEmbedderCachesPerModelAndTask(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{model: "ollama:all-minilm"}
	e := WrapLruCacheToEmbedder(inner, 10, time.Minute)

	first, err := e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)

	_, err = e.Embed(ctx, "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)

	second[0] = 99
	third, err := e.Embed(ctx, "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, float32(5), third[0])
	require.Equal(t, "ollama:all-minilm", e.ModelName())
}

func TestLruEmbedderDisabled(t *testing.T) {
	inner := &countingEmbedder{model: "m"}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
}

func TestDBEmbedderPersists(t *testing.T) {
	ctx := context.Background()
	db, err := repo.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, repo.ApplyMigrations(db))
	cacheRepo := repo.NewEmbeddingCacheRepo(db)

	inner := &countingEmbedder{model: "m1"}
	e := WrapDBCacheToEmbedder(inner, cacheRepo)
	v1, err := e.Embed(ctx, "note", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "note", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, 1, inner.calls)

	other := WrapDBCacheToEmbedder(&countingEmbedder{model: "m2"}, cacheRepo)
	v3, err := other.Embed(ctx, "note", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, float32(1), v3[1])
}

func TestBuildCacheKey(t *testing.T) {
	key, hash, model := buildCacheKey(" ", "T", "abc")
	require.Equal(t, "unknown", model)
	require.Len(t, hash, 64)
	require.Equal(t, "embed:unknown:T:"+hash, key)
}
