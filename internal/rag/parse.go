package rag

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// ParseErrorMessage is the message of the single-row dataset returned when the
// model output is not valid JSON.
const ParseErrorMessage = "Failed to parse LLM output into JSON format."

var (
	openingFence = regexp.MustCompile("^```(?:json)?")
	closingFence = regexp.MustCompile("```$")
)

// ParseFailureDataset returns a fresh copy of the degraded dataset.
func ParseFailureDataset() []any {
	return []any{map[string]any{"error": ParseErrorMessage}}
}

// NormalizeResponse trims raw and strips one leading ```json or ``` fence and
// one trailing ``` fence when present.
func NormalizeResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if loc := openingFence.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
		if loc := closingFence.FindStringIndex(s); loc != nil {
			s = s[:loc[0]]
		}
	}
	return strings.TrimSpace(s)
}

// ParseDataset decodes exactly one JSON value from the normalized response.
// Numbers are kept as json.Number so they re-encode unchanged.
func ParseDataset(raw string) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(NormalizeResponse(raw))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ParseFailureDataset(), false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ParseFailureDataset(), false
	}
	return v, true
}
