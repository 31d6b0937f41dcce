package rag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeResponse(t *testing.T) {
	cases := map[string]string{
		"```json\n[{\"a\":1}]\n```": `[{"a":1}]`,
		"  ```\n[]\n```  ":          `[]`,
		"[1, 2]":                    `[1, 2]`,
		"```json[{\"a\":1}]":        `[{"a":1}]`,
		"here is ```json []```":     "here is ```json []```",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeResponse(in), "input %q", in)
	}
}

func TestParseDatasetFencedArray(t *testing.T) {
	v, ok := ParseDataset("```json\n[{\"a\":1}]\n```")
	assert.True(t, ok)
	b, _ := json.Marshal(v)
	assert.JSONEq(t, `[{"a":1}]`, string(b))
}

func TestParseDatasetFallsBackToSentinel(t *testing.T) {
	for _, in := range []string{"not json at all", "", "[1] [2]", "```json\n{\"a\":\n```"} {
		v, ok := ParseDataset(in)
		assert.False(t, ok, in)
		b, _ := json.Marshal(v)
		assert.JSONEq(t, `[{"error": "Failed to parse LLM output into JSON format."}]`, string(b), in)
	}
}

func TestParseDatasetAcceptsAnyJSONValue(t *testing.T) {
	v, ok := ParseDataset(`{"rows": 3}`)
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"rows": json.Number("3")}, v)
}

func TestSentinelIsNotShared(t *testing.T) {
	a := ParseFailureDataset()
	a[0].(map[string]any)["error"] = "changed"
	assert.Equal(t, ParseErrorMessage, ParseFailureDataset()[0].(map[string]any)["error"])
}
