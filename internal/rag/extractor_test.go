package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"docminer/internal/models"
	"docminer/internal/providers"
	"docminer/internal/util"
	"docminer/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedLLM struct {
	text string
	err  error
	last providers.GenerateRequest
}

func (c *cannedLLM) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	c.last = req
	return providers.GenerateResponse{Text: c.text}, providers.ProviderInfo{Name: "canned", Model: "v1"}, c.err
}

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	return nil, providers.ProviderInfo{Name: "broken"}, errors.New("connection refused")
}

type brokenStore struct {
	*vector.MemoryStore
}

func (brokenStore) Search(ctx context.Context, query []float32, k int) ([]models.ScoredSegment, error) {
	return nil, errors.New("database is locked")
}

const dim = 64

func seededStore(t *testing.T, n int) (*vector.MemoryStore, providers.EmbeddingProvider) {
	t.Helper()
	emb := providers.NewMockProvider(dim)
	store := vector.NewMemoryStore(dim)
	records := make([]vector.Record, 0, n)
	for i := 0; i < n; i++ {
		text := "invoice line " + strings.Repeat("x", i+1)
		vecs, _, err := emb.Embed(context.Background(), providers.EmbedRequest{Inputs: []string{text}, Dimension: dim})
		require.NoError(t, err)
		records = append(records, vector.Record{
			ID:        text,
			Text:      text,
			Metadata:  models.Metadata{models.MetaDocID: "5", models.MetaPage: i + 1},
			Embedding: vecs[0],
		})
	}
	require.NoError(t, store.AddBatch(context.Background(), records))
	return store, emb
}

func newExtractor(t *testing.T, llm providers.LLMProvider, segments int) *Extractor {
	store, emb := seededStore(t, segments)
	return NewExtractor(NewRetriever(emb, store, DefaultTopK, dim), llm, DefaultTemperature, nil)
}

func TestExtractParsesFencedJSON(t *testing.T) {
	llm := &cannedLLM{text: "```json\n[{\"a\":1}]\n```"}
	res, err := newExtractor(t, llm, 3).Extract(context.Background(), "list invoice lines")
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	b, _ := json.Marshal(res.Dataset)
	assert.JSONEq(t, `[{"a":1}]`, string(b))
	assert.Len(t, res.AuditTrail, 3)
}

func TestExtractUnparseableOutputKeepsAuditTrail(t *testing.T) {
	llm := &cannedLLM{text: "not json at all"}
	res, err := newExtractor(t, llm, 12).Extract(context.Background(), "list invoice lines")
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	b, _ := json.Marshal(res.Dataset)
	assert.JSONEq(t, `[{"error": "Failed to parse LLM output into JSON format."}]`, string(b))

	require.Len(t, res.AuditTrail, DefaultTopK)
	require.Len(t, res.Segments, DefaultTopK)
	for i, seg := range res.Segments {
		assert.Equal(t, seg.Metadata, res.AuditTrail[i])
	}
}

func TestExtractBuildsPromptFromRetrievedContext(t *testing.T) {
	llm := &cannedLLM{text: "[]"}
	ex := newExtractor(t, llm, 2)
	res, err := ex.Extract(context.Background(), "Extract invoice totals")
	require.NoError(t, err)

	req := llm.last
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "JSON array of objects")
	assert.Contains(t, req.Messages[0].Content, "return an empty array []")
	assert.Contains(t, req.Messages[0].Content, res.Segments[0].Text+"\n\n"+res.Segments[1].Text)
	assert.Equal(t, "User Prompt: Extract invoice totals\n\nReturn ONLY a JSON array of objects matching this request.", req.Messages[1].Content)
	assert.Equal(t, []any{}, res.Dataset)
}

func TestExtractPropagatesModelFailure(t *testing.T) {
	llm := &cannedLLM{err: errors.New("openrouter generate error 401: bad key")}
	_, err := newExtractor(t, llm, 1).Extract(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrModelInvocation)
}

func TestExtractPropagatesRetrievalFailure(t *testing.T) {
	llm := &cannedLLM{text: "[]"}
	ex := NewExtractor(NewRetriever(brokenEmbedder{}, vector.NewMemoryStore(dim), 10, dim), llm, 0.1, nil)
	_, err := ex.Extract(context.Background(), "x")
	assert.ErrorIs(t, err, util.ErrEmbeddingFailed)
}

func TestExtractSearchFailureIsStoreError(t *testing.T) {
	llm := &cannedLLM{text: "[]"}
	store := brokenStore{vector.NewMemoryStore(dim)}
	ex := NewExtractor(NewRetriever(providers.NewMockProvider(dim), store, 10, dim), llm, 0.1, nil)
	_, err := ex.Extract(context.Background(), "x")
	require.ErrorIs(t, err, util.ErrStoreFailed)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Nil(t, llm.last.Messages, "model is not called when retrieval fails")
}

func TestExtractOnEmptyStoreStillCallsModelOnce(t *testing.T) {
	llm := &cannedLLM{text: "[]"}
	ex := NewExtractor(NewRetriever(providers.NewMockProvider(dim), vector.NewMemoryStore(dim), 10, dim), llm, 0.1, nil)
	res, err := ex.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, res.AuditTrail)
	assert.NotNil(t, res.AuditTrail)
}

func TestDatasetJSONKeepsModelKeyOrder(t *testing.T) {
	llm := &cannedLLM{text: "```json\n[{\"z\":1,\"a\":2}]\n```"}
	res, err := newExtractor(t, llm, 1).Extract(context.Background(), "x")
	require.NoError(t, err)
	b, err := res.DatasetJSON()
	require.NoError(t, err)
	assert.Equal(t, `[{"z":1,"a":2}]`, string(b))

	res.Parsed = false
	res.Dataset = ParseFailureDataset()
	b, err = res.DatasetJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"error":"Failed to parse LLM output into JSON format."}]`, string(b))
}
