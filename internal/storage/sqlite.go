package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docminer/internal/models"
	"docminer/internal/storage/migrations"
	"docminer/internal/util"
)

type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := util.EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	pending, err := pendingMigrations(migrations.SQLite(), current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`, m.version, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, filename, filePath string) (models.Document, error) {
	doc := models.Document{
		Filename:   filename,
		FilePath:   filePath,
		Status:     models.StatusPending,
		UploadTime: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO document_metadata (filename, file_path, status, upload_time)
VALUES (?, ?, ?, ?)`, doc.Filename, doc.FilePath, string(doc.Status), formatTime(doc.UploadTime))
	if err != nil {
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Document{}, fmt.Errorf("create document id: %w", err)
	}
	doc.ID = id
	return doc, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, errMsg string) error {
	if !validStatus(status) {
		return fmt.Errorf("update document status: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE document_metadata SET status=?, error=NULLIF(?, '') WHERE id=?`, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) SetExtractedData(ctx context.Context, id int64, data string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE document_metadata SET extracted_data=? WHERE id=?`, data, id)
	if err != nil {
		return fmt.Errorf("set extracted data: %w", err)
	}
	return expectOneRow(res, id)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (models.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, filename, file_path, status, upload_time, COALESCE(extracted_data, ''), COALESCE(error, '')
FROM document_metadata WHERE id=?`, id)
	doc, err := scanSQLiteDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, filename, file_path, status, upload_time, COALESCE(extracted_data, ''), COALESCE(error, '')
FROM document_metadata ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) RecordExtraction(ctx context.Context, run models.ExtractionRun) error {
	run = withRunDefaults(run)
	dataset, audit, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO extraction_runs (id, prompt, provider, model, parsed, dataset, audit_trail, latency_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Prompt, run.Provider, run.Model, run.Parsed, dataset, audit, run.LatencyMS, formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert extraction run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, limit int) ([]models.ExtractionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, prompt, provider, model, parsed, dataset, audit_trail, latency_ms, created_at
FROM extraction_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list extraction runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExtractionRun, 0)
	for rows.Next() {
		var (
			run            models.ExtractionRun
			dataset, audit string
			created        string
		)
		if err := rows.Scan(&run.ID, &run.Prompt, &run.Provider, &run.Model, &run.Parsed, &dataset, &audit, &run.LatencyMS, &created); err != nil {
			return nil, fmt.Errorf("scan extraction run: %w", err)
		}
		if err := decodeRun(&run, []byte(dataset), []byte(audit)); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row rowScanner) (models.Document, error) {
	var (
		doc      models.Document
		status   string
		uploaded string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &status, &uploaded, &doc.ExtractedData, &doc.Error); err != nil {
		return models.Document{}, err
	}
	doc.Status = models.DocumentStatus(status)
	t, err := parseTime(uploaded)
	if err != nil {
		return models.Document{}, err
	}
	doc.UploadTime = t
	return doc, nil
}

func expectOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func encodeRun(run models.ExtractionRun) (string, string, error) {
	dataset, err := json.Marshal(run.Dataset)
	if err != nil {
		return "", "", fmt.Errorf("encode dataset: %w", err)
	}
	audit := run.AuditTrail
	if audit == nil {
		audit = []models.Metadata{}
	}
	trail, err := json.Marshal(audit)
	if err != nil {
		return "", "", fmt.Errorf("encode audit trail: %w", err)
	}
	return string(dataset), string(trail), nil
}

func decodeRun(run *models.ExtractionRun, dataset, audit []byte) error {
	if err := util.DecodeJSONNumbers(dataset, &run.Dataset); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}
	if err := util.DecodeJSONNumbers(audit, &run.AuditTrail); err != nil {
		return fmt.Errorf("decode audit trail: %w", err)
	}
	return nil
}
