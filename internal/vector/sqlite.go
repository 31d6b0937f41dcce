package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"docminer/internal/models"
	"docminer/internal/util"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS segments (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	segment_id TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_collection ON segments(collection);
CREATE INDEX IF NOT EXISTS idx_segments_doc ON segments(collection, doc_id);
`

// SQLiteStore keeps segments in a local SQLite file and scores them in process.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	dim        int
}

func NewSQLiteStore(path, collection string, dim int) (*SQLiteStore, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create segments schema: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection, dim: dim}, nil
}

func (s *SQLiteStore) AddBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validate(records, s.dim); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx add segments: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO segments (segment_id, collection, doc_id, text, metadata, embedding)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert segment: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, s.collection, docIDOf(r.Metadata), r.Text, string(meta), encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("insert segment %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]models.ScoredSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT segment_id, text, metadata, embedding
FROM segments
WHERE collection = ?
ORDER BY seq ASC`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	hits := make([]models.ScoredSegment, 0, 64)
	for rows.Next() {
		var (
			seg  models.Segment
			meta string
			blob []byte
		)
		if err := rows.Scan(&seg.ID, &seg.Text, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if seg.Metadata, err = decodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", seg.ID, err)
		}
		hits = append(hits, models.ScoredSegment{Segment: seg, Score: cosine(query, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return topK(hits, k), nil
}

func (s *SQLiteStore) DeleteByDocID(ctx context.Context, docID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM segments WHERE collection = ? AND doc_id = ?`, s.collection, docID)
	if err != nil {
		return 0, fmt.Errorf("delete segments for doc %s: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count segments: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// decodeMetadata keeps numbers as json.Number so page numbers round-trip verbatim.
func decodeMetadata(b []byte) (models.Metadata, error) {
	var m models.Metadata
	if err := util.DecodeJSONNumbers(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
