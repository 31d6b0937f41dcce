// Package activities holds the Temporal activities behind durable ingestion
// and dataset extraction. Each one is a thin step over the same components the
// HTTP server and CLI use.
package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"docminer/internal/config"
	"docminer/internal/extract"
	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/pipeline"
	"docminer/internal/rag"
	"docminer/internal/storage"
	"docminer/internal/util"
	"docminer/internal/vector"
)

type DatasetExtractor interface {
	Extract(ctx context.Context, prompt string) (rag.Result, error)
}

// Deps are the components the activities drive.
type Deps struct {
	Docs        storage.DocumentStore
	Extractions storage.ExtractionLog
	Extractor   pipeline.FileExtractor
	Indexer     pipeline.ChunkIndexer
	Segments    vector.Store
	RAG         DatasetExtractor
	Logger      *slog.Logger
}

type Activities struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

func New(cfg config.Config, deps Deps) *Activities {
	return &Activities{cfg: cfg, deps: deps, log: logging.OrDefault(deps.Logger)}
}

func (a *Activities) ListSourceFilesActivity(ctx context.Context, in ListSourceFilesInput) (ListSourceFilesOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListSourceFilesOutput{}, temporal.NewNonRetryableApplicationError(fmt.Sprintf("read input dir: %v", err), "InvalidInputDir", nil)
	}
	out := ListSourceFilesOutput{Paths: make([]string, 0, len(entries))}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(in.InputDir, e.Name())
		if extract.Supported(path) {
			out.Paths = append(out.Paths, path)
		} else {
			out.Skipped = append(out.Skipped, path)
		}
	}
	sort.Strings(out.Paths)
	return out, nil
}

func (a *Activities) RegisterDocumentActivity(ctx context.Context, in RegisterDocumentInput) (RegisterDocumentOutput, error) {
	name := in.Filename
	if name == "" {
		name = filepath.Base(in.Path)
	}
	doc, err := a.deps.Docs.CreateDocument(ctx, name, in.Path)
	if err != nil {
		return RegisterDocumentOutput{}, err
	}
	return RegisterDocumentOutput{DocID: doc.ID}, nil
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	if in.ExtractedData != "" {
		if err := a.deps.Docs.SetExtractedData(ctx, in.DocID, in.ExtractedData); err != nil {
			return err
		}
	}
	return a.deps.Docs.UpdateStatus(ctx, in.DocID, in.Status, in.Error)
}

// ExtractFileActivity fails without retry when the file itself is the problem.
func (a *Activities) ExtractFileActivity(ctx context.Context, in ExtractFileInput) (ExtractFileOutput, error) {
	chunks, err := a.deps.Extractor.ProcessFile(ctx, in.Path)
	switch {
	case errors.Is(err, util.ErrUnsupportedFormat):
		return ExtractFileOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupportedFormat, nil)
	case errors.Is(err, util.ErrImageProcessingFailed):
		return ExtractFileOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeImageProcessingFailed, nil)
	case err != nil:
		return ExtractFileOutput{}, err
	}
	return ExtractFileOutput{Chunks: chunks}, nil
}

// IndexChunksActivity clears the document's previous segments first so a
// retried attempt never leaves duplicates behind.
func (a *Activities) IndexChunksActivity(ctx context.Context, in IndexChunksInput) (IndexChunksOutput, error) {
	docID := strconv.FormatInt(in.DocID, 10)
	var out IndexChunksOutput
	if a.deps.Segments != nil {
		n, err := a.deps.Segments.DeleteByDocID(ctx, docID)
		if err != nil {
			return IndexChunksOutput{}, fmt.Errorf("clear segments for doc %s: %w", docID, err)
		}
		out.Replaced = n
	}
	n, err := a.deps.Indexer.Index(ctx, in.Chunks, docID)
	if err != nil {
		return IndexChunksOutput{}, err
	}
	out.Segments = n
	return out, nil
}

func (a *Activities) WriteBatchReportActivity(ctx context.Context, in WriteBatchReportInput) (WriteBatchReportOutput, error) {
	_ = ctx
	dir := util.SafeJoin(filepath.Join(a.cfg.DataOutRoot, "ingest"), in.RunID)
	out := WriteBatchReportOutput{Path: filepath.Join(dir, "report.json")}
	if err := util.WriteJSONAtomic(out.Path, in.Report); err != nil {
		return WriteBatchReportOutput{}, err
	}
	if len(in.Files) > 0 {
		out.FilesPath = filepath.Join(dir, "files.jsonl")
		if err := util.WriteJSONLinesAtomic(out.FilesPath, in.Files); err != nil {
			return WriteBatchReportOutput{}, err
		}
	}
	return out, nil
}

func (a *Activities) ExtractDatasetActivity(ctx context.Context, in ExtractDatasetInput) (ExtractDatasetOutput, error) {
	res, err := a.deps.RAG.Extract(ctx, in.Prompt)
	if err != nil {
		return ExtractDatasetOutput{}, err
	}
	data, err := res.DatasetJSON()
	if err != nil {
		return ExtractDatasetOutput{}, fmt.Errorf("encode dataset: %w", err)
	}
	out := ExtractDatasetOutput{
		RunID:      uuid.NewString(),
		Dataset:    json.RawMessage(data),
		AuditTrail: res.AuditTrail,
		Parsed:     res.Parsed,
		Provider:   res.Provider,
	}
	if a.deps.Extractions != nil {
		err := a.deps.Extractions.RecordExtraction(ctx, models.ExtractionRun{
			ID:         out.RunID,
			Prompt:     in.Prompt,
			Provider:   res.Provider.Name,
			Model:      res.Provider.Model,
			Parsed:     res.Parsed,
			Dataset:    res.Dataset,
			AuditTrail: res.AuditTrail,
			LatencyMS:  res.Latency.Milliseconds(),
		})
		if err != nil {
			a.log.Warn("record extraction run", "run_id", out.RunID, "err", err)
		}
	}
	return out, nil
}
