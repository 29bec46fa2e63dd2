package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const (
	DefaultCollection = "personal_knowledge"
	DefaultDimension  = 384
	DefaultTimeout    = 15 * time.Second
)

// Point is a chunk together with its embedding, as written to a backend.
type Point struct {
	ID     string
	Vector []float32
	Chunk  model.Chunk
}

// Store is one named collection of embedded chunks. Every backend ranks by
// cosine similarity, best match first.
type Store interface {
	Type() string
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	// Delete removes every point matched by filter. An empty filter is rejected.
	Delete(ctx context.Context, filter *model.Filter) error
	Search(ctx context.Context, vector []float32, k int, filter *model.Filter) ([]model.SearchResult, error)
	Info(ctx context.Context) (*model.CollectionInfo, error)
	Close() error
}

type Config struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection"`
	Dimension  int         `json:"dimension"`
	Timeout    int         `json:"timeout"`
	Data       interface{} `json:"data"`
}

type Args struct {
	Collection string
	Timeout    time.Duration
	Data       interface{}
}

type Factory func(args Args) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg Config) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = DefaultCollection
	}
	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return factory(Args{Collection: collection, Timeout: timeout, Data: cfg.Data})
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}

func validatePoints(points []Point) error {
	for _, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point id is required")
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("point %s has no vector", p.ID)
		}
	}
	return nil
}
