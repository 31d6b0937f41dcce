package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"docminer/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore keeps segments in Postgres and ranks them with the pgvector
// cosine distance operator.
type PgVectorStore struct {
	pool       *pgxpool.Pool
	collection string
	dim        int
}

func NewPgVectorStore(pool *pgxpool.Pool, collection string, dim int) *PgVectorStore {
	return &PgVectorStore{pool: pool, collection: collection, dim: dim}
}

// EnsureSchema creates the extension, table and indexes for the configured dimension.
func (s *PgVectorStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS segments (
  seq        BIGSERIAL,
  segment_id TEXT PRIMARY KEY,
  collection TEXT NOT NULL,
  doc_id     TEXT NOT NULL DEFAULT '',
  text       TEXT NOT NULL,
  metadata   JSONB NOT NULL,
  embedding  vector(%d) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_segments_collection_doc ON segments(collection, doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_embedding ON segments USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure segments schema: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) AddBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validate(records, s.dim); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx add segments: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", r.ID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO segments (segment_id, collection, doc_id, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::vector)`,
			r.ID, s.collection, docIDOf(r.Metadata), r.Text, string(meta), pgvector.NewVector(r.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert segment %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit segments tx: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, query []float32, k int) ([]models.ScoredSegment, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx, `
SELECT segment_id, text, metadata::text, 1 - (embedding <=> $2::vector) AS score
FROM segments
WHERE collection = $1
ORDER BY embedding <=> $2::vector, seq
LIMIT $3`, s.collection, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	out := make([]models.ScoredSegment, 0, k)
	for rows.Next() {
		var (
			hit  models.ScoredSegment
			meta string
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &meta, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan segment result: %w", err)
		}
		if hit.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", hit.ID, err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

func (s *PgVectorStore) DeleteByDocID(ctx context.Context, docID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM segments WHERE collection=$1 AND doc_id=$2`, s.collection, docID)
	if err != nil {
		return 0, fmt.Errorf("delete segments for doc %s: %w", docID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM segments WHERE collection=$1`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

// Close is a no-op; the pool belongs to storage.DB.
func (s *PgVectorStore) Close() error {
	return nil
}
