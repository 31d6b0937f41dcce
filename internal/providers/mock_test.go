package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbeddingsShareVocabulary(t *testing.T) {
	m := NewMockProvider(384)
	vecs, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{
		"invoice total amount due for Acme",
		"Invoice total amount due",
		"quarterly rainfall in coastal regions",
	}})
	require.NoError(t, err)
	near := dot(vecs[0], vecs[1])
	far := dot(vecs[0], vecs[2])
	assert.Greater(t, near, far)
	assert.InDelta(t, 1.0, dot(vecs[0], vecs[0]), 1e-5)
}

func TestMockGenerateReturnsFencedJSON(t *testing.T) {
	m := NewMockProvider(0)
	resp, _, err := m.Generate(context.Background(), GenerateRequest{Context: []string{"row one\nmore", "row two"}})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.Text, "```json\n"))
	body := strings.TrimSuffix(strings.TrimPrefix(resp.Text, "```json\n"), "\n```")
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "row one", rows[0]["text"])
}

func TestRateLimitedLLMHonoursContext(t *testing.T) {
	inner := &scriptedLLM{name: "x", text: "[]"}
	p := WithRateLimit(inner, 0.001)
	_, _, err := p.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = p.Generate(ctx, GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)

	assert.Same(t, LLMProvider(inner), WithRateLimit(inner, 0))
}
