package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/vecutil"
)

// MemoryStore keeps points in process and searches by brute force. It is
// meant for tests and dry runs; nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	collection string
	dimension  int
	created    bool
	order      []string
	points     map[string]Point
}

func NewMemoryStore(collection string) *MemoryStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MemoryStore{collection: collection, points: make(map[string]Point)}
}

func init() {
	Register("memory", func(args Args) (Store, error) {
		return NewMemoryStore(args.Collection), nil
	})
}

func (s *MemoryStore) Type() string {
	return "memory"
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		if s.dimension != dimension {
			return fmt.Errorf("collection %s has vector size %d, embedder produces %d", s.collection, s.dimension, dimension)
		}
		return nil
	}
	s.dimension = dimension
	s.created = true
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	if err := validatePoints(points); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return fmt.Errorf("collection %s does not exist", s.collection)
	}
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(p.Vector), s.dimension)
		}
	}
	for _, p := range points {
		if _, ok := s.points[p.ID]; !ok {
			s.order = append(s.order, p.ID)
		}
		p.Vector = vecutil.Clone(p.Vector)
		p.Chunk.Metadata = p.Chunk.Metadata.Clone()
		s.points[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, filter *model.Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("delete requires a filter")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if filter.Matches(s.points[id].Chunk.Metadata) {
			delete(s.points, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, fmt.Errorf("collection %s does not exist", s.collection)
	}
	results := make([]model.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		p := s.points[id]
		if !filter.Matches(p.Chunk.Metadata) {
			continue
		}
		results = append(results, model.SearchResult{
			Content:  p.Chunk.Text,
			Metadata: p.Chunk.Metadata.Clone(),
			Score:    vecutil.Cosine(vector, p.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) Info(ctx context.Context) (*model.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, fmt.Errorf("collection %s does not exist", s.collection)
	}
	n := int64(len(s.order))
	return &model.CollectionInfo{Name: s.collection, Status: "green", PointsCount: n, VectorsCount: n}, nil
}

// Count returns the number of points whose metadata matches filter.
func (s *MemoryStore) Count(filter *model.Filter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.order {
		if filter.Matches(s.points[id].Chunk.Metadata) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Close() error {
	return nil
}
