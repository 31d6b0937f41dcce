package workflows

import "docminer/internal/models"

type FileIngestInput struct {
	// DocID is the existing record for the file; zero registers a new one.
	DocID    int64  `json:"doc_id,omitempty"`
	Path     string `json:"path"`
	Filename string `json:"filename,omitempty"`
}

type FileIngestResult struct {
	DocID    int64                 `json:"doc_id"`
	Path     string                `json:"path"`
	Status   models.DocumentStatus `json:"status"`
	Chunks   int                   `json:"chunks"`
	Segments int                   `json:"segments"`
	Error    string                `json:"error,omitempty"`
}

type FileStatus struct {
	DocID       int64             `json:"doc_id"`
	Path        string            `json:"path"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Steps       map[string]string `json:"steps"`
}

type BatchIngestInput struct {
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
}

type BatchIngestProgress struct {
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Completed     int               `json:"completed"`
	Failed        int               `json:"failed"`
	PerFile       map[string]string `json:"per_file_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}

type BatchIngestResult struct {
	Total      int                `json:"total"`
	Completed  int                `json:"completed"`
	Failed     int                `json:"failed"`
	Skipped    []string           `json:"skipped,omitempty"`
	Files      []FileIngestResult `json:"files"`
	ReportPath string             `json:"report_path"`
}

type DatasetInput struct {
	Prompt string `json:"prompt"`
}
