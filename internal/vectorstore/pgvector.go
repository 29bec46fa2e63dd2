package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/sadjad6/personal-knowledge-agent/internal/db"
	"github.com/sadjad6/personal-knowledge-agent/internal/model"
	"github.com/sadjad6/personal-knowledge-agent/internal/pkg/dbutil"
)

// PgVectorStore keeps one collection per table in PostgreSQL with the
// pgvector extension. Scores are 1 - cosine distance.
type PgVectorStore struct {
	db         *sqlx.DB
	collection string
	table      string
}

func NewPgVectorStore(conn *sql.DB, collection string) *PgVectorStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &PgVectorStore{
		db:         sqlx.NewDb(conn, "postgres"),
		collection: collection,
		table:      "vectors_" + strings.ToLower(tableNameCleaner.ReplaceAllString(collection, "_")),
	}
}

func init() {
	Register("pgvector", func(args Args) (Store, error) {
		opts := db.Options{}
		if err := decodeConfig(args.Data, &opts); err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), args.Timeout)
		defer cancel()
		conn, err := db.Open(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return NewPgVectorStore(conn, args.Collection), nil
	})
}

func (s *PgVectorStore) Type() string {
	return "pgvector"
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if err := db.ApplyMigrations(ctx, s.db.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
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
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			ingestion_time TIMESTAMPTZ,
			last_modified TIMESTAMPTZ,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (source)", s.table, s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ingestion ON %s (ingestion_time)", s.table, s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)", s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", s.collection, err)
		}
	}
	const insert = `INSERT INTO vector_collections (name, dimension, ctime) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`
	_, err = s.db.ExecContext(ctx, insert, s.collection, dimension, time.Now().UnixMilli())
	return err
}

func (s *PgVectorStore) dimension(ctx context.Context) (int, bool, error) {
	var dim int
	err := s.db.GetContext(ctx, &dim, `SELECT dimension FROM vector_collections WHERE name = $1`, s.collection)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, source, ingestion_time, last_modified, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			ingestion_time = EXCLUDED.ingestion_time,
			last_modified = EXCLUDED.last_modified,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, p := range points {
		md := p.Chunk.Metadata
		payload, err := json.Marshal(md.Payload())
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		_, err = tx.ExecContext(ctx, query,
			p.ID,
			md.Source,
			nullTime(md.IngestionTime),
			nullTime(md.LastModified),
			p.Chunk.Text,
			string(payload),
			pgvector.NewVector(p.Vector),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PgVectorStore) Delete(ctx context.Context, filter *model.Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("delete requires a filter")
	}
	where, args := pgWhere(filter)
	query, args := dbutil.Finalize("DELETE FROM "+s.table+" WHERE "+where, args)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

type pgSearchRow struct {
	Content  string  `db:"content"`
	Metadata []byte  `db:"metadata"`
	Score    float64 `db:"score"`
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	vec := pgvector.NewVector(vector)
	args := []interface{}{vec}
	query := "SELECT content, metadata, 1 - (embedding <=> ?) AS score FROM " + s.table
	if !filter.IsEmpty() {
		where, whereArgs := pgWhere(filter)
		query += " WHERE " + where
		args = append(args, whereArgs...)
	}
	query += " ORDER BY embedding <=> ?, seq LIMIT ?"
	args = append(args, vec, k)
	query, args = dbutil.Finalize(query, args)

	var rows []pgSearchRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(rows))
	for _, row := range rows {
		payload := map[string]interface{}{}
		if err := json.Unmarshal(row.Metadata, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		results = append(results, model.SearchResult{
			Content:  row.Content,
			Metadata: model.MetadataFromPayload(payload),
			Score:    float32(row.Score),
		})
	}
	return results, nil
}

func (s *PgVectorStore) Info(ctx context.Context) (*model.CollectionInfo, error) {
	if _, ok, err := s.dimension(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("collection %s does not exist", s.collection)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+s.table); err != nil {
		return nil, err
	}
	return &model.CollectionInfo{Name: s.collection, Status: "green", PointsCount: n, VectorsCount: n}, nil
}

func (s *PgVectorStore) Close() error {
	return s.db.Close()
}

// pgWhere renders filter with "?" placeholders. Source and the two ingestion
// timestamps use real columns, everything else reads the JSONB payload.
func pgWhere(filter *model.Filter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	for _, c := range filter.Conditions {
		column := ""
		switch c.Key {
		case model.MetaSource, model.MetaIngestionTime, model.MetaLastModified:
			column = c.Key
		}
		if c.IsRange() {
			if column != "" && column != model.MetaSource {
				clauses = append(clauses, column+" > ?")
				args = append(args, c.After.UTC())
				continue
			}
			clauses = append(clauses, "(metadata->>?)::timestamptz > ?")
			args = append(args, c.Key, c.After.UTC())
			continue
		}
		values := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			values = append(values, pgText(v))
		}
		if column == model.MetaSource {
			clauses = append(clauses, "source = ANY(?)")
			args = append(args, pq.Array(values))
			continue
		}
		clauses = append(clauses, "metadata->>? = ANY(?)")
		args = append(args, c.Key, pq.Array(values))
	}
	return strings.Join(clauses, " AND "), args
}

// pgText renders a value the way ->> prints the stored payload field.
func pgText(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return model.FormatTime(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
