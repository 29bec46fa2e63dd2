package vectorstore

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/vecutil"
	"github.com/sadjad6/personal-knowledge-agent/internal/repo"
)

const (
	sqliteCollectionsTable = "vector_collections"
	sqliteDeleteBatch      = 500
)

var tableNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_]`)

type sqliteConfig struct {
	Path string `json:"path"`
}

// SQLiteStore keeps vectors as float32 blobs and ranks them by brute force.
// Source and time conditions are pushed into the query; the rest of the
// filter is evaluated on the decoded payload.
type SQLiteStore struct {
	db         *sql.DB
	owned      bool
	collection string
	table      string
}

func NewSQLiteStore(db *sql.DB, collection string) *SQLiteStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &SQLiteStore{
		db:         db,
		collection: collection,
		table:      "vectors_" + strings.ToLower(tableNameCleaner.ReplaceAllString(collection, "_")),
	}
}

func init() {
	Register("sqlite", func(args Args) (Store, error) {
		cfg := &sqliteConfig{}
		if err := decodeConfig(args.Data, cfg); err != nil {
			return nil, err
		}
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = "data/vectors.db"
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create vector db dir: %w", err)
			}
		}
		db, err := repo.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
		s := NewSQLiteStore(db, args.Collection)
		s.owned = true
		return s, nil
	})
}

func (s *SQLiteStore) Type() string {
	return "sqlite"
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + sqliteCollectionsTable + " (name TEXT PRIMARY KEY, dimension INTEGER NOT NULL)",
		"CREATE TABLE IF NOT EXISTS " + s.table + ` (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			ingestion_time INTEGER NOT NULL DEFAULT 0,
			last_modified INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_" + s.table + "_source ON " + s.table + " (source)",
		"CREATE INDEX IF NOT EXISTS idx_" + s.table + "_ingestion ON " + s.table + " (ingestion_time)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", s.collection, err)
		}
	}
	current, ok, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if ok {
		if current != dimension {
			return fmt.Errorf("collection %s has vector size %d, embedder produces %d", s.collection, current, dimension)
		}
		return nil
	}
	sqlStr, args, err := builder.BuildInsert(sqliteCollectionsTable, []map[string]interface{}{{"name": s.collection, "dimension": dimension}})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLiteStore) dimension(ctx context.Context) (int, bool, error) {
	sqlStr, args, err := builder.BuildSelect(sqliteCollectionsTable, map[string]interface{}{"name": s.collection}, []string{"dimension"})
	if err != nil {
		return 0, false, err
	}
	var dim int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&dim); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return dim, true, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	dim, ok, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %s does not exist", s.collection)
	}
	rows := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(p.Vector), dim)
		}
		md := p.Chunk.Metadata
		payload, err := json.Marshal(md.Payload())
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		rows = append(rows, map[string]interface{}{
			"id":             p.ID,
			"source":         md.Source,
			"ingestion_time": unixMillis(md.IngestionTime),
			"last_modified":  unixMillis(md.LastModified),
			"content":        p.Chunk.Text,
			"metadata":       string(payload),
			"embedding":      vecutil.Encode(p.Vector),
		})
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, row := range rows {
		sqlStr, args, err := builder.BuildInsert(s.table, []map[string]interface{}{row})
		if err != nil {
			return err
		}
		sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, filter *model.Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("delete requires a filter")
	}
	var ids []interface{}
	err := s.scan(ctx, filter, false, func(row *sqliteRow) error {
		ids = append(ids, row.id)
		return nil
	})
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += sqliteDeleteBatch {
		end := start + sqliteDeleteBatch
		if end > len(ids) {
			end = len(ids)
		}
		sqlStr, args, err := builder.BuildDelete(s.table, map[string]interface{}{"id in": ids[start:end]})
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

type scoredPoint struct {
	seq    int64
	score  float32
	result model.SearchResult
}

// scoredHeap is a min-heap ordered by score, later rows losing ties.
type scoredHeap []scoredPoint

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].seq > h[j].seq
}
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scoredPoint)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if _, ok, err := s.dimension(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("collection %s does not exist", s.collection)
	}
	h := &scoredHeap{}
	var buf []float32
	err := s.scan(ctx, filter, true, func(row *sqliteRow) error {
		vec, err := vecutil.DecodeInto(buf, row.embedding)
		if err != nil {
			return fmt.Errorf("decode vector %s: %w", row.id, err)
		}
		buf = vec
		item := scoredPoint{seq: row.seq, score: vecutil.Cosine(vector, vec)}
		if h.Len() >= k {
			if (*h)[0].score >= item.score {
				return nil
			}
			heap.Pop(h)
		}
		item.result = model.SearchResult{Content: row.content, Metadata: row.metadata}
		heap.Push(h, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	items := []scoredPoint(*h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].seq < items[j].seq
	})
	results := make([]model.SearchResult, 0, len(items))
	for _, item := range items {
		item.result.Score = item.score
		results = append(results, item.result)
	}
	return results, nil
}

type sqliteRow struct {
	id        string
	seq       int64
	metadata  model.Metadata
	content   string
	embedding []byte
}

// scan calls fn for every row matching filter. Source and time conditions
// narrow the query; the full filter is then checked on the payload.
func (s *SQLiteStore) scan(ctx context.Context, filter *model.Filter, withBody bool, fn func(row *sqliteRow) error) error {
	fields := []string{"id", "seq", "metadata"}
	if withBody {
		fields = append(fields, "content", "embedding")
	}
	where := pushdown(filter)
	where["_orderby"] = "seq asc"
	sqlStr, args, err := builder.BuildSelect(s.table, where, fields)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			row  sqliteRow
			meta string
		)
		dest := []interface{}{&row.id, &row.seq, &meta}
		if withBody {
			dest = append(dest, &row.content, &row.embedding)
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		payload := map[string]interface{}{}
		if err := json.Unmarshal([]byte(meta), &payload); err != nil {
			return fmt.Errorf("decode payload %s: %w", row.id, err)
		}
		row.metadata = model.MetadataFromPayload(payload)
		if !filter.Matches(row.metadata) {
			continue
		}
		if err := fn(&row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Info(ctx context.Context) (*model.CollectionInfo, error) {
	if _, ok, err := s.dimension(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("collection %s does not exist", s.collection)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return nil, err
	}
	return &model.CollectionInfo{Name: s.collection, Status: "green", PointsCount: n, VectorsCount: n}, nil
}

func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// pushdown turns the source and time conditions into a gendry where map.
func pushdown(filter *model.Filter) map[string]interface{} {
	where := map[string]interface{}{}
	if filter == nil {
		return where
	}
	for _, c := range filter.Conditions {
		switch c.Key {
		case model.MetaSource:
			if c.IsRange() || len(c.Values) == 0 {
				continue
			}
			if _, exists := where["source in"]; exists {
				continue
			}
			values := make([]interface{}, 0, len(c.Values))
			for _, v := range c.Values {
				if str, ok := v.(string); ok {
					values = append(values, str)
				}
			}
			if len(values) == len(c.Values) {
				where["source in"] = values
			}
		case model.MetaIngestionTime, model.MetaLastModified:
			if !c.IsRange() {
				continue
			}
			// millisecond columns are truncated, so the strict check is left to Matches
			key := c.Key + " >="
			if _, exists := where[key]; exists {
				continue
			}
			where[key] = unixMillis(*c.After)
		}
	}
	return where
}
