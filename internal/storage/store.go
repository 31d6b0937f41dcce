// Package storage persists document processing status and extraction history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"docminer/internal/models"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore tracks one record per uploaded file.
type DocumentStore interface {
	CreateDocument(ctx context.Context, filename, filePath string) (models.Document, error)
	UpdateStatus(ctx context.Context, id int64, status models.DocumentStatus, errMsg string) error
	SetExtractedData(ctx context.Context, id int64, data string) error
	GetDocument(ctx context.Context, id int64) (models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// ExtractionLog keeps every dataset request with the segments it was answered from.
type ExtractionLog interface {
	RecordExtraction(ctx context.Context, run models.ExtractionRun) error
	ListExtractions(ctx context.Context, limit int) ([]models.ExtractionRun, error)
}

// Store is what the application needs from a backend.
type Store interface {
	DocumentStore
	ExtractionLog
	Close() error
}

type migration struct {
	version int
	name    string
	sql     string
}

// pendingMigrations returns the NNN_name.up.sql files in fsys newer than current, in order.
func pendingMigrations(fsys fs.FS, current int) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: version, name: name, sql: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func validStatus(s models.DocumentStatus) bool {
	switch s {
	case models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
		return true
	}
	return false
}
