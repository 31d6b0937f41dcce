// Package index splits extracted chunks into overlapping segments, embeds them
// and writes them to a vector store as a single batch.
package index

import (
	"context"
	"fmt"
	"log/slog"

	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/providers"
	"docminer/internal/util"
	"docminer/internal/vector"

	"github.com/google/uuid"
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Dimension    int
	BatchSize    int
}

type Indexer struct {
	embedder providers.EmbeddingProvider
	store    vector.Store
	opts     Options
	logger   *slog.Logger
}

func New(embedder providers.EmbeddingProvider, store vector.Store, opts Options, logger *slog.Logger) *Indexer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = util.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = util.DefaultChunkOverlap
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Indexer{embedder: embedder, store: store, opts: opts, logger: logging.OrDefault(logger)}
}

// Segments splits chunks into segments tagged with docID, without embedding them.
func (ix *Indexer) Segments(chunks []models.ExtractedChunk, docID string) []models.Segment {
	out := make([]models.Segment, 0, len(chunks))
	for _, c := range chunks {
		for _, window := range util.SplitText(c.Content, ix.opts.ChunkSize, ix.opts.ChunkOverlap) {
			meta := c.Metadata.Clone()
			meta[models.MetaDocID] = docID
			out = append(out, models.Segment{ID: uuid.NewString(), Text: window, Metadata: meta})
		}
	}
	return out
}

// Index embeds and stores every segment of chunks under docID and returns the
// number of segments written. Nothing is written unless every embedding succeeds.
func (ix *Indexer) Index(ctx context.Context, chunks []models.ExtractedChunk, docID string) (int, error) {
	segments := ix.Segments(chunks, docID)
	if len(segments) == 0 {
		return 0, nil
	}

	vectors, err := ix.embed(ctx, segments)
	if err != nil {
		return 0, err
	}
	records := make([]vector.Record, len(segments))
	for i, s := range segments {
		records[i] = vector.Record{ID: s.ID, Text: s.Text, Metadata: s.Metadata, Embedding: vectors[i]}
	}
	if err := ix.store.AddBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("%w: doc %s: %w", util.ErrStoreFailed, docID, err)
	}
	ix.logger.Info("indexed document", "doc_id", docID, "chunks", len(chunks), "segments", len(segments))
	return len(segments), nil
}

func (ix *Indexer) embed(ctx context.Context, segments []models.Segment) ([][]float32, error) {
	out := make([][]float32, 0, len(segments))
	for start := 0; start < len(segments); start += ix.opts.BatchSize {
		end := start + ix.opts.BatchSize
		if end > len(segments) {
			end = len(segments)
		}
		inputs := make([]string, 0, end-start)
		for _, s := range segments[start:end] {
			inputs = append(inputs, s.Text)
		}
		vecs, info, err := ix.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "index_segments",
			Inputs:    inputs,
			Dimension: ix.opts.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", util.ErrEmbeddingFailed, info.Name, err)
		}
		if len(vecs) != len(inputs) {
			return nil, fmt.Errorf("%w: %s returned %d vectors for %d segments", util.ErrEmbeddingFailed, info.Name, len(vecs), len(inputs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
