// Package rag answers structured-extraction prompts from the indexed corpus.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docminer/internal/logging"
	"docminer/internal/models"
	"docminer/internal/providers"
	"docminer/internal/util"
	"docminer/internal/vector"
)

const (
	DefaultTopK        = 10
	DefaultTemperature = 0.1
)

// Retriever embeds a query and returns the nearest segments.
type Retriever struct {
	embedder providers.EmbeddingProvider
	store    vector.Store
	k        int
	dim      int
}

func NewRetriever(embedder providers.EmbeddingProvider, store vector.Store, k, dim int) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, k: k, dim: dim}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredSegment, error) {
	vecs, info, err := r.embedder.Embed(ctx, providers.EmbedRequest{Operation: "embed_query", Inputs: []string{query}, Dimension: r.dim})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query via %s: %w", util.ErrEmbeddingFailed, info.Name, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", util.ErrEmbeddingFailed, len(vecs))
	}
	hits, err := r.store.Search(ctx, vecs[0], r.k)
	if err != nil {
		return nil, fmt.Errorf("%w: search segments: %w", util.ErrStoreFailed, err)
	}
	return hits, nil
}

// Result is the outcome of one extraction. Dataset is any JSON value; when the
// model output could not be parsed it is the one-row error dataset and Parsed is false.
type Result struct {
	Dataset    any                    `json:"dataset"`
	AuditTrail []models.Metadata      `json:"audit_trail"`
	Segments   []models.ScoredSegment `json:"-"`
	RawAnswer  string                 `json:"-"`
	Parsed     bool                   `json:"parsed"`
	Provider   providers.ProviderInfo `json:"provider"`
	Latency    time.Duration          `json:"-"`
}

type Extractor struct {
	retriever   *Retriever
	llm         providers.LLMProvider
	temperature float64
	logger      *slog.Logger
}

func NewExtractor(retriever *Retriever, llm providers.LLMProvider, temperature float64, logger *slog.Logger) *Extractor {
	return &Extractor{retriever: retriever, llm: llm, temperature: temperature, logger: logging.OrDefault(logger)}
}

// Extract retrieves context for prompt, makes one model call and parses the answer.
// Retrieval and model failures are returned as errors; unparseable output is not.
func (e *Extractor) Extract(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	hits, err := e.retriever.Retrieve(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	contexts := make([]string, 0, len(hits))
	audit := make([]models.Metadata, 0, len(hits))
	for _, h := range hits {
		contexts = append(contexts, h.Text)
		audit = append(audit, h.Metadata)
	}

	resp, info, err := e.llm.Generate(ctx, providers.GenerateRequest{
		Operation:   "extract_dataset",
		Prompt:      prompt,
		Context:     contexts,
		Messages:    BuildMessages(prompt, hits),
		Temperature: e.temperature,
	})
	if err != nil {
		if errors.Is(err, util.ErrModelInvocation) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", util.ErrModelInvocation, err)
	}

	dataset, ok := ParseDataset(resp.Text)
	if !ok {
		e.logger.Warn("model output is not valid json", "provider", info.Name, "model", info.Model, "answer", util.DisplaySnippet(resp.Text, 200))
	}
	res := Result{
		Dataset:    dataset,
		AuditTrail: audit,
		Segments:   hits,
		RawAnswer:  resp.Text,
		Parsed:     ok,
		Provider:   info,
		Latency:    time.Since(start),
	}
	e.logger.Info("dataset extracted", "segments", len(hits), "parsed", ok, "provider", info.Name, "latency_ms", res.Latency.Milliseconds())
	return res, nil
}

// DatasetJSON returns the dataset as JSON text. A parsed answer is returned
// as the model wrote it, so object key order survives into exports.
func (r Result) DatasetJSON() ([]byte, error) {
	if r.Parsed {
		return []byte(NormalizeResponse(r.RawAnswer)), nil
	}
	return json.Marshal(r.Dataset)
}
