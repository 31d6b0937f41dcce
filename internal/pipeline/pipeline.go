// Package pipeline drives uploaded files through extraction and indexing while
// keeping each file's document record in step.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/storage"
	"docminer/internal/util"
)

// DefaultWorkers bounds how many files of one batch are processed at once.
const DefaultWorkers = 5

type FileExtractor interface {
	ProcessFile(ctx context.Context, path string) ([]models.ExtractedChunk, error)
}

type ChunkIndexer interface {
	Index(ctx context.Context, chunks []models.ExtractedChunk, docID string) (int, error)
}

type Job struct {
	DocID    int64  `json:"doc_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

type Result struct {
	DocID    int64                 `json:"doc_id"`
	Filename string                `json:"filename"`
	Status   models.DocumentStatus `json:"status"`
	Chunks   int                   `json:"chunks"`
	Segments int                   `json:"segments"`
	Error    string                `json:"error,omitempty"`
}

type Ingestor struct {
	extractor FileExtractor
	indexer   ChunkIndexer
	docs      storage.DocumentStore
	workers   int
	logger    *slog.Logger
}

func New(extractor FileExtractor, indexer ChunkIndexer, docs storage.DocumentStore, workers int, logger *slog.Logger) *Ingestor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Ingestor{extractor: extractor, indexer: indexer, docs: docs, workers: workers, logger: logging.OrDefault(logger)}
}

// Register creates the pending record for a file already saved at path.
func (in *Ingestor) Register(ctx context.Context, filename, path string) (Job, error) {
	if filename == "" {
		filename = filepath.Base(path)
	}
	doc, err := in.docs.CreateDocument(ctx, filename, path)
	if err != nil {
		return Job{}, err
	}
	return Job{DocID: doc.ID, Filename: filename, Path: path}, nil
}

// IngestFile processes one registered file. Failures are reported in the
// result and recorded on the document; they are never returned.
func (in *Ingestor) IngestFile(ctx context.Context, job Job) Result {
	res := Result{DocID: job.DocID, Filename: job.Filename}
	// Status writes must land even when the caller's context is cancelled mid-file.
	bg := context.WithoutCancel(ctx)
	log := in.logger.With("doc_id", job.DocID, "file", job.Filename)

	fail := func(err error) Result {
		res.Status = models.StatusFailed
		res.Error = err.Error()
		if uerr := in.docs.UpdateStatus(bg, job.DocID, models.StatusFailed, res.Error); uerr != nil {
			log.Error("record failure", "err", uerr)
		}
		log.Warn("ingest failed", "err", err)
		return res
	}

	if err := in.docs.UpdateStatus(bg, job.DocID, models.StatusProcessing, ""); err != nil {
		return fail(fmt.Errorf("mark processing: %w", err))
	}
	chunks, err := in.extractor.ProcessFile(ctx, job.Path)
	if err != nil {
		return fail(err)
	}
	segments, err := in.indexer.Index(ctx, chunks, strconv.FormatInt(job.DocID, 10))
	if err != nil {
		return fail(err)
	}
	res.Chunks, res.Segments = len(chunks), segments

	summary := models.IngestSummary{Chunks: res.Chunks, Segments: res.Segments}
	if sum, err := util.FileSHA256(job.Path); err == nil {
		summary.SHA256 = sum
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return fail(fmt.Errorf("encode summary: %w", err))
	}
	if err := in.docs.SetExtractedData(bg, job.DocID, string(b)); err != nil {
		return fail(err)
	}
	if err := in.docs.UpdateStatus(bg, job.DocID, models.StatusCompleted, ""); err != nil {
		return fail(fmt.Errorf("mark completed: %w", err))
	}
	res.Status = models.StatusCompleted
	log.Info("ingest completed", "chunks", res.Chunks, "segments", res.Segments)
	return res
}

// IngestBatch processes jobs with at most the configured number in flight and
// returns one result per job in input order. One file failing does not stop the others.
func (in *Ingestor) IngestBatch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = in.IngestFile(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for _, r := range results {
		if r.Status == models.StatusCompleted {
			completed++
		}
	}
	in.logger.Info("batch ingested", "files", len(jobs), "completed", completed, "failed", len(jobs)-completed)
	return results
}

// IngestPaths registers every path and ingests them as one batch.
func (in *Ingestor) IngestPaths(ctx context.Context, paths []string) ([]Result, error) {
	jobs := make([]Job, 0, len(paths))
	for _, p := range paths {
		job, err := in.Register(ctx, filepath.Base(p), p)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", p, err)
		}
		jobs = append(jobs, job)
	}
	return in.IngestBatch(ctx, jobs), nil
}
