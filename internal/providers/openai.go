package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// OpenAIProvider uses standard OpenAI REST APIs for chat and embeddings.
type OpenAIProvider struct {
	chat       *chatClient
	embedModel string
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	baseURL := envOr("DOCMINER_OPENAI_BASE_URL", "https://api.openai.com/v1")
	model := envOr("DOCMINER_OPENAI_MODEL", "gpt-4o-mini")
	return &OpenAIProvider{
		chat:       newChatClient("openai", baseURL, model, keyName, resolveKey("OPENAI", keyName, "OPENAI_API_KEY")),
		embedModel: envOr("DOCMINER_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
	}
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	return o.chat.generate(ctx, req)
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: o.embedModel, Key: o.chat.keyName}
	if o.chat.apiKey == "" {
		return nil, info, fmt.Errorf("openai key missing for alias %q", o.chat.keyName)
	}
	body := map[string]any{"model": o.embedModel, "input": req.Inputs}
	if req.Dimension > 0 {
		body["dimensions"] = req.Dimension
	}
	payload, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.chat.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, info, fmt.Errorf("build openai embedding request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.chat.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.chat.client.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("openai embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, fmt.Errorf("openai embedding error %d: %s", resp.StatusCode, string(raw))
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(req.Inputs) {
		return nil, info, fmt.Errorf("openai returned %d embeddings for %d inputs", len(parsed.Data), len(req.Inputs))
	}
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = matchDimension(d.Embedding, req.Dimension)
	}
	return out, info, nil
}

// resolveKey prefers DOCMINER_<VENDOR>_KEY_<ALIAS>, then the vendor's conventional variable.
func resolveKey(vendor, alias, fallbackVar string) string {
	if alias != "" {
		if k := os.Getenv("DOCMINER_" + vendor + "_KEY_" + sanitizeEnvToken(alias)); k != "" {
			return k
		}
	}
	return os.Getenv(fallbackVar)
}

func envOr(k, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return fallback
}
