package activities

import (
	"encoding/json"

	"docminer/internal/models"
	"docminer/internal/providers"
)

// Application error types attached to non-retryable activity failures.
const (
	ErrTypeUnsupportedFormat     = "UnsupportedFormat"
	ErrTypeImageProcessingFailed = "ImageProcessingFailed"
)

type ListSourceFilesInput struct {
	InputDir string `json:"input_dir"`
}

type ListSourceFilesOutput struct {
	Paths   []string `json:"paths"`
	Skipped []string `json:"skipped,omitempty"`
}

type RegisterDocumentInput struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

type RegisterDocumentOutput struct {
	DocID int64 `json:"doc_id"`
}

type UpdateDocumentStatusInput struct {
	DocID         int64                 `json:"doc_id"`
	Status        models.DocumentStatus `json:"status"`
	Error         string                `json:"error,omitempty"`
	ExtractedData string                `json:"extracted_data,omitempty"`
}

type ExtractFileInput struct {
	Path string `json:"path"`
}

type ExtractFileOutput struct {
	Chunks []models.ExtractedChunk `json:"chunks"`
}

type IndexChunksInput struct {
	DocID  int64                   `json:"doc_id"`
	Chunks []models.ExtractedChunk `json:"chunks"`
}

type IndexChunksOutput struct {
	Segments int `json:"segments"`
	Replaced int `json:"replaced"`
}

// WriteBatchReportInput carries the batch summary and one encoded result per file.
type WriteBatchReportInput struct {
	RunID  string            `json:"run_id"`
	Report map[string]any    `json:"report"`
	Files  []json.RawMessage `json:"files,omitempty"`
}

type WriteBatchReportOutput struct {
	Path      string `json:"path"`
	FilesPath string `json:"files_path,omitempty"`
}

type ExtractDatasetInput struct {
	Prompt string `json:"prompt"`
}

type ExtractDatasetOutput struct {
	RunID      string                 `json:"run_id"`
	Dataset    json.RawMessage        `json:"dataset"`
	AuditTrail []models.Metadata      `json:"audit_trail"`
	Parsed     bool                   `json:"parsed"`
	Provider   providers.ProviderInfo `json:"provider"`
}
