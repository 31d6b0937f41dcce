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
	"time"
)

const (
	defaultOllamaEmbedModel = "all-minilm"
	defaultOllamaChatModel  = "llama3.2"
)

// OllamaProvider talks to a local Ollama server. It embeds with a sentence
// model (all-MiniLM-L6-v2 by default, 384 dimensions) and chats with a local
// instruct model, so extraction can run without any hosted API.
type OllamaProvider struct {
	alias      string
	baseURL    string
	embedModel string
	chatModel  string
	client     *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(envOr("DOCMINER_OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		embedModel: resolveOllamaModel(alias, "EMBED", defaultOllamaEmbedModel),
		chatModel:  resolveOllamaModel(alias, "CHAT", defaultOllamaChatModel),
		client:     &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed sends all inputs in one /api/embed call.
func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := o.post(ctx, "/api/embed", map[string]any{
		"model": o.embedModel,
		"input": req.Inputs,
	}, &parsed)
	if err != nil {
		return nil, info, fmt.Errorf("ollama embed: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding for input %d", i)
		}
		out[i] = matchDimension(v, req.Dimension)
	}
	return out, info, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	var parsed struct {
		Message ChatMessage `json:"message"`
	}
	err := o.post(ctx, "/api/chat", map[string]any{
		"model":    o.chatModel,
		"messages": buildMessages(req),
		"stream":   false,
		"options":  map[string]any{"temperature": req.Temperature},
	}, &parsed)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("ollama chat: %w", err)
	}
	text := strings.TrimSpace(parsed.Message.Content)
	if text == "" {
		return GenerateResponse{}, info, fmt.Errorf("ollama returned an empty answer")
	}
	return GenerateResponse{Text: text}, info, nil
}

func (o *OllamaProvider) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// resolveOllamaModel maps a provider alias to a model name. Lookup order:
// DOCMINER_OLLAMA_<KIND>_MODEL_<ALIAS>, a known short alias, the alias itself
// when it looks like a model name, DOCMINER_OLLAMA_<KIND>_MODEL, then fallback.
func resolveOllamaModel(alias, kind, fallback string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("DOCMINER_OLLAMA_" + kind + "_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		if kind == "EMBED" {
			switch strings.ToLower(alias) {
			case "minilm":
				return "all-minilm"
			case "nomic":
				return "nomic-embed-text"
			case "bge":
				return "bge-small-en-v1.5"
			}
		}
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOCMINER_OLLAMA_" + kind + "_MODEL")); v != "" {
		return v
	}
	return fallback
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}

// matchDimension truncates or zero-pads v to target so a model with a wider
// output can still fill an index of fixed width.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
