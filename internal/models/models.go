package models

import "time"

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
	FormatDocx  Format = "docx"
	FormatImage Format = "image"
)

// Metadata keys carried on chunks and segments.
const (
	MetaSource = "source"
	MetaFormat = "format"
	MetaPage   = "page"
	MetaSheet  = "sheet"
	MetaOCR    = "ocr"
	MetaDocID  = "doc_id"
)

type Metadata map[string]any

// Clone returns a shallow copy so segments never share a map with their chunk.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

type ExtractedChunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

type Segment struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

type ScoredSegment struct {
	Segment
	Score float64 `json:"score"`
}

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID            int64          `json:"id"`
	Filename      string         `json:"filename"`
	FilePath      string         `json:"file_path"`
	Status        DocumentStatus `json:"status"`
	UploadTime    time.Time      `json:"upload_time"`
	ExtractedData string         `json:"extracted_data,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// IngestSummary is stored as a document's extracted_data once indexing completes.
type IngestSummary struct {
	Chunks   int    `json:"chunks"`
	Segments int    `json:"segments"`
	SHA256   string `json:"sha256,omitempty"`
}

type ExtractionRun struct {
	ID         string     `json:"id"`
	Prompt     string     `json:"prompt"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Parsed     bool       `json:"parsed"`
	Dataset    any        `json:"dataset"`
	AuditTrail []Metadata `json:"audit_trail"`
	LatencyMS  int64      `json:"latency_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}
