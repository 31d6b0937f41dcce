package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docminer/internal/models"
	"docminer/internal/storage/migrations"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// Migrate applies the pending Postgres migrations, each in its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current int
	if err := d.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	pending, err := pendingMigrations(migrations.Postgres(), current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, m.version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

// PGStore is the Postgres DocumentStore and ExtractionLog.
type PGStore struct {
	db *DB
}

func NewPGStore(db *DB) *PGStore {
	return &PGStore{db: db}
}

func (r *PGStore) Close() error {
	r.db.Close()
	return nil
}

func (r *PGStore) CreateDocument(ctx context.Context, filename, filePath string) (models.Document, error) {
	doc := models.Document{Filename: filename, FilePath: filePath, Status: models.StatusPending}
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO document_metadata (filename, file_path, status)
VALUES ($1, $2, 'pending')
RETURNING id, upload_time`, filename, filePath).Scan(&doc.ID, &doc.UploadTime)
	if err != nil {
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func (r *PGStore) UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, errMsg string) error {
	if !validStatus(status) {
		return fmt.Errorf("update document status: invalid status %q", status)
	}
	tag, err := r.db.Pool.Exec(ctx, `UPDATE document_metadata SET status=$2, error=NULLIF($3,'') WHERE id=$1`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (r *PGStore) SetExtractedData(ctx context.Context, id int64, data string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE document_metadata SET extracted_data=$2 WHERE id=$1`, id, data)
	if err != nil {
		return fmt.Errorf("set extracted data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (r *PGStore) GetDocument(ctx context.Context, id int64) (models.Document, error) {
	var (
		doc    models.Document
		status string
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, filename, file_path, status, upload_time, COALESCE(extracted_data,''), COALESCE(error,'')
FROM document_metadata
WHERE id=$1`, id).
		Scan(&doc.ID, &doc.Filename, &doc.FilePath, &status, &doc.UploadTime, &doc.ExtractedData, &doc.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Status = models.DocumentStatus(status)
	return doc, nil
}

func (r *PGStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, filename, file_path, status, upload_time, COALESCE(extracted_data,''), COALESCE(error,'')
FROM document_metadata
ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var (
			doc    models.Document
			status string
		)
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &status, &doc.UploadTime, &doc.ExtractedData, &doc.Error); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Status = models.DocumentStatus(status)
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *PGStore) RecordExtraction(ctx context.Context, run models.ExtractionRun) error {
	run = withRunDefaults(run)
	dataset, audit, err := encodeRun(run)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO extraction_runs(id, prompt, provider, model, parsed, dataset, audit_trail, latency_ms, created_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9)`,
		run.ID, run.Prompt, run.Provider, run.Model, run.Parsed, dataset, audit, run.LatencyMS, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert extraction run: %w", err)
	}
	return nil
}

func (r *PGStore) ListExtractions(ctx context.Context, limit int) ([]models.ExtractionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, prompt, provider, model, parsed, dataset::text, audit_trail::text, latency_ms, created_at
FROM extraction_runs
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list extraction runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.ExtractionRun, 0)
	for rows.Next() {
		var (
			run            models.ExtractionRun
			dataset, audit string
		)
		if err := rows.Scan(&run.ID, &run.Prompt, &run.Provider, &run.Model, &run.Parsed, &dataset, &audit, &run.LatencyMS, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction run: %w", err)
		}
		if err := decodeRun(&run, []byte(dataset), []byte(audit)); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction runs: %w", err)
	}
	return out, nil
}

func withRunDefaults(run models.ExtractionRun) models.ExtractionRun {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return run
}
