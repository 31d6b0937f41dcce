// Package api serves uploads, dataset extraction and document status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docminer/internal/config"
	"docminer/internal/export"
	"docminer/internal/extract"
	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/pipeline"
	"docminer/internal/rag"
	"docminer/internal/storage"
	"docminer/internal/util"
	"docminer/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

const maxUploadMemory = 128 << 20

type Ingestor interface {
	Register(ctx context.Context, filename, path string) (pipeline.Job, error)
	IngestBatch(ctx context.Context, jobs []pipeline.Job) []pipeline.Result
}

type DatasetExtractor interface {
	Extract(ctx context.Context, prompt string) (rag.Result, error)
}

// Deps are the components behind the routes. Extractions and Temporal are optional.
type Deps struct {
	Docs        storage.DocumentStore
	Extractions storage.ExtractionLog
	Ingestor    Ingestor
	RAG         DatasetExtractor
	Temporal    tclient.Client
	Logger      *slog.Logger
}

type Server struct {
	cfg         config.Config
	docs        storage.DocumentStore
	extractions storage.ExtractionLog
	ingestor    Ingestor
	rag         DatasetExtractor
	temporal    tclient.Client
	logger      *slog.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:         cfg,
		docs:        deps.Docs,
		extractions: deps.Extractions,
		ingestor:    deps.Ingestor,
		rag:         deps.RAG,
		temporal:    deps.Temporal,
		logger:      logging.OrDefault(deps.Logger),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/generate-dataset", s.handleGenerateDataset)
	mux.HandleFunc("/generate-dataset/xlsx", s.handleGenerateXLSX)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocument)
	mux.HandleFunc("/extractions", s.handleExtractions)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/ingest/", s.handleIngestProgress)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "temporal": s.temporal != nil})
}

type uploadDetail struct {
	Filename string                `json:"filename"`
	DocID    int64                 `json:"doc_id,omitempty"`
	Status   models.DocumentStatus `json:"status"`
	Chunks   int                   `json:"chunks"`
	Segments int                   `json:"segments"`
	Error    string                `json:"error,omitempty"`
}

const statusRejected models.DocumentStatus = "rejected"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	if err := util.EnsureDir(s.cfg.UploadDir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	details := make([]uploadDetail, len(files))
	jobs := make([]pipeline.Job, 0, len(files))
	slot := make([]int, 0, len(files))
	for i, fh := range files {
		name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
		details[i] = uploadDetail{Filename: name}
		if !extract.Supported(name) {
			details[i].Status = statusRejected
			details[i].Error = fmt.Sprintf("%v: %s", util.ErrUnsupportedFormat, name)
			continue
		}
		// A file that cannot be stored or registered fails alone; the rest of the batch still runs.
		path, err := saveUploadedFile(s.cfg.UploadDir, fh)
		if err != nil {
			s.logger.Error("save upload", "filename", name, "err", err)
			details[i].Status, details[i].Error = models.StatusFailed, err.Error()
			continue
		}
		job, err := s.ingestor.Register(r.Context(), name, path)
		if err != nil {
			s.logger.Error("register upload", "filename", name, "err", err)
			_ = os.Remove(path)
			details[i].Status, details[i].Error = models.StatusFailed, fmt.Sprintf("register document: %v", err)
			continue
		}
		details[i].DocID = job.DocID
		jobs = append(jobs, job)
		slot = append(slot, i)
	}
	if len(jobs) == 0 && allRejected(details) {
		writeErr(w, http.StatusBadRequest, util.ErrUnsupportedFormat)
		return
	}

	var results []pipeline.Result
	if len(jobs) > 0 {
		results = s.ingestor.IngestBatch(r.Context(), jobs)
	}
	for k, res := range results {
		d := &details[slot[k]]
		d.Status, d.Chunks, d.Segments, d.Error = res.Status, res.Chunks, res.Segments, res.Error
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": details})
}

type datasetRequest struct {
	Prompt string `json:"prompt"`
	// Query is accepted as an alias of Prompt.
	Query  string `json:"query"`
	Format string `json:"format"`
}

func (s *Server) handleGenerateDataset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req datasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(req.Query)
	}
	if prompt == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" && format != "excel" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unsupported output format %q", req.Format))
		return
	}

	res, data, ok := s.extract(w, r, prompt)
	if !ok {
		return
	}
	var payload any = json.RawMessage(data)
	if format == "csv" {
		text, err := export.ToCSV(data)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		payload = text
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"format":      format,
		"data":        payload,
		"audit_trail": res.AuditTrail,
	})
}

func (s *Server) handleGenerateXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}
	_, data, ok := s.extract(w, r, prompt)
	if !ok {
		return
	}
	table, err := export.FromJSON(data)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="dataset.xlsx"`)
	if err := table.WriteXLSX(w); err != nil {
		s.logger.Error("stream workbook", "err", err)
	}
}

// extract runs one extraction, records it and returns the dataset JSON. On
// failure it has already written the error response.
func (s *Server) extract(w http.ResponseWriter, r *http.Request, prompt string) (rag.Result, []byte, bool) {
	res, err := s.rag.Extract(r.Context(), prompt)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, util.ErrModelInvocation) || errors.Is(err, util.ErrEmbeddingFailed) {
			code = http.StatusBadGateway
		}
		s.logger.Error("dataset extraction failed", "err", err)
		writeErr(w, code, err)
		return rag.Result{}, nil, false
	}
	data, err := res.DatasetJSON()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return rag.Result{}, nil, false
	}
	if s.extractions != nil {
		run := models.ExtractionRun{
			Prompt:     prompt,
			Provider:   res.Provider.Name,
			Model:      res.Provider.Model,
			Parsed:     res.Parsed,
			Dataset:    res.Dataset,
			AuditTrail: res.AuditTrail,
			LatencyMS:  res.Latency.Milliseconds(),
		}
		if err := s.extractions.RecordExtraction(r.Context(), run); err != nil {
			s.logger.Warn("record extraction run", "err", err)
		}
	}
	return res, data, true
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	id, err := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	doc, err := s.docs.GetDocument(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleExtractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.extractions == nil {
		writeJSON(w, http.StatusOK, map[string]any{"extractions": []models.ExtractionRun{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.extractions.ListExtractions(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"extractions": runs})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("temporal is not configured"))
		return
	}
	var req struct {
		Dir                   string `json:"dir"`
		MaxConcurrentChildren int    `json:"max_concurrent_children"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("dir is required"))
		return
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "ingest-" + uuid.NewString(),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
		InputDir:              req.Dir,
		MaxConcurrentChildren: req.MaxConcurrentChildren,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("temporal is not configured"))
		return
	}
	workflowID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ingest/"), "/")
	if workflowID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.BatchIngestProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

// saveUploadedFile streams the upload to a temp file in dstDir and renames it
// to a unique <uuid>_<name> path once fully written.
func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	finalPath := util.UploadPath(dstDir, fh.Filename)
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", fmt.Errorf("move upload: %w", err)
	}
	return finalPath, nil
}

func allRejected(details []uploadDetail) bool {
	for _, d := range details {
		if d.Status != statusRejected {
			return false
		}
	}
	return true
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}
