package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSystemPrompt = "You extract structured data from documents. Answer only from the provided context."

// chatClient speaks the OpenAI chat-completions protocol shared by OpenAI, Groq and OpenRouter.
type chatClient struct {
	name    string
	baseURL string
	model   string
	keyName string
	apiKey  string
	headers map[string]string
	client  *http.Client
}

func newChatClient(name, baseURL, model, keyName, apiKey string) *chatClient {
	return &chatClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		keyName: keyName,
		apiKey:  apiKey,
		headers: map[string]string{},
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *chatClient) info() ProviderInfo {
	return ProviderInfo{Name: c.name, Model: c.model, Key: c.keyName}
}

func (c *chatClient) generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := c.info()
	if c.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("%s key missing for alias %q", c.name, c.keyName)
	}
	payload, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    buildMessages(req),
		"temperature": req.Temperature,
	})
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("encode %s request: %w", c.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("build %s request: %w", c.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("%s generate request failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, fmt.Errorf("%s generate error %d: %s", c.name, resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode %s response: %w", c.name, err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("%s returned empty choices", c.name)
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}

func buildMessages(req GenerateRequest) []ChatMessage {
	if len(req.Messages) > 0 {
		return req.Messages
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt += "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	return []ChatMessage{
		{Role: "system", Content: defaultSystemPrompt},
		{Role: "user", Content: prompt},
	}
}
