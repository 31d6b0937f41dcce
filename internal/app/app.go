// Package app builds the shared component graph used by the API server, the
// Temporal worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docminer/internal/activities"
	"docminer/internal/config"
	"docminer/internal/extract"
	"docminer/internal/index"
	"docminer/internal/logging"
	"docminer/internal/pipeline"
	"docminer/internal/providers"
	"docminer/internal/rag"
	"docminer/internal/storage"
	"docminer/internal/vector"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Providers *providers.Manager
	Docs      storage.Store
	Segments  vector.Store
	Extractor *extract.Extractor
	Indexer   *index.Indexer
	RAG       *rag.Extractor
	Ingestor  *pipeline.Ingestor

	closers []func() error
}

// New wires embedding, vector store, retriever and model in that order. On
// error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	logger = logging.OrDefault(logger)
	a := &App{Config: cfg, Logger: logger}

	// An empty list would fall back to the mock provider and index with hashed vectors.
	if strings.TrimSpace(cfg.LLMProviders) == "" || strings.TrimSpace(cfg.EmbedProviders) == "" {
		return nil, fmt.Errorf("llm_providers and embed_providers must be set; use \"mock\" for offline runs")
	}
	pm, err := providers.NewManager(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	if pm.EmbedCount() == 0 || pm.LLMCount() == 0 {
		return nil, fmt.Errorf("at least one llm and one embedding provider must be configured")
	}
	a.Providers = pm

	if a.Segments, err = a.openVectorStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.Docs, err = storage.Open(ctx, cfg.DocumentStore, cfg.SQLitePath, cfg.PostgresURL); err != nil {
		a.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}
	a.closers = append(a.closers, a.Docs.Close)

	a.Extractor = extract.New(append(a.ocrOptions(), extract.WithLogger(logger))...)
	a.Indexer = index.New(pm, a.Segments, index.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Dimension:    cfg.EmbedDim,
		BatchSize:    cfg.EmbedBatchSize,
	}, logger)
	retriever := rag.NewRetriever(pm, a.Segments, cfg.RetrievalTopK, cfg.EmbedDim)
	a.RAG = rag.NewExtractor(retriever, pm, cfg.Temperature, logger)
	a.Ingestor = pipeline.New(a.Extractor, a.Indexer, a.Docs, cfg.IngestWorkers, logger)

	logger.Info("components ready",
		"document_store", cfg.DocumentStore,
		"vector_store", cfg.VectorStore,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	return a, nil
}

func (a *App) openVectorStore(ctx context.Context) (vector.Store, error) {
	cfg := a.Config
	switch strings.ToLower(strings.TrimSpace(cfg.VectorStore)) {
	case "memory":
		return vector.NewMemoryStore(cfg.EmbedDim), nil
	case "", "sqlite":
		s, err := vector.NewSQLiteStore(cfg.VectorPath, cfg.Collection, cfg.EmbedDim)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "pgvector", "postgres":
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		s := vector.NewPgVectorStore(db.Pool, cfg.Collection, cfg.EmbedDim)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}

// ocrOptions enables OCR and PDF rasterization when their binaries are on PATH.
// Without them scanned pages are skipped and images fail to ingest.
func (a *App) ocrOptions() []extract.Option {
	var opts []extract.Option
	if ocr, err := extract.NewTesseractOCR(a.Config.OCRBinary, a.Config.OCRLanguage); err == nil {
		opts = append(opts, extract.WithOCR(ocr))
	} else {
		a.Logger.Warn("ocr disabled", "binary", a.Config.OCRBinary, "err", err)
	}
	if r, err := extract.NewPopplerRasterizer(a.Config.RasterBinary, a.Config.RasterDPI); err == nil {
		opts = append(opts, extract.WithRasterizer(r))
	} else {
		a.Logger.Warn("pdf rasterizer disabled", "binary", a.Config.RasterBinary, "err", err)
	}
	return opts
}

// Activities returns the Temporal activities backed by this app's components.
func (a *App) Activities() *activities.Activities {
	return activities.New(a.Config, activities.Deps{
		Docs:        a.Docs,
		Extractions: a.Docs,
		Extractor:   a.Extractor,
		Indexer:     a.Indexer,
		Segments:    a.Segments,
		RAG:         a.RAG,
		Logger:      a.Logger,
	})
}

// Close releases stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
