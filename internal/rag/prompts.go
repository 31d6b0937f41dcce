package rag

import (
	"strings"

	"docminer/internal/models"
	"docminer/internal/providers"
)

const systemPromptTemplate = `You are a data extraction engine.
Read the context below and extract the data requested by the user.

Rules:
1. Return the extracted data ONLY as a valid JSON array of objects.
2. Do not wrap the output in markdown code fences. Return the raw JSON array only.
3. If the context does not contain the answer, return an empty array [].
4. Use only facts stated in the context. Never invent values.

Context:
{context}
`

const userPromptTemplate = "User Prompt: {input}\n\nReturn ONLY a JSON array of objects matching this request."

// BuildMessages assembles the system and user messages for one extraction request.
// Retrieved segment texts are joined with blank lines in retrieval order.
func BuildMessages(prompt string, segments []models.ScoredSegment) []providers.ChatMessage {
	return []providers.ChatMessage{
		{Role: "system", Content: strings.Replace(systemPromptTemplate, "{context}", joinContext(segments), 1)},
		{Role: "user", Content: strings.Replace(userPromptTemplate, "{input}", prompt, 1)},
	}
}

func joinContext(segments []models.ScoredSegment) string {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, "\n\n")
}
