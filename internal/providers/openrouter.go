package providers

import "context"

// OpenRouterProvider routes chat completions through openrouter.ai. The default
// model is the low-cost Gemini Flash Lite tier used for dataset extraction.
type OpenRouterProvider struct {
	chat *chatClient
}

func NewOpenRouterProvider(keyName string) *OpenRouterProvider {
	baseURL := envOr("DOCMINER_OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	model := envOr("DOCMINER_OPENROUTER_MODEL", "google/gemini-2.5-flash-lite")
	c := newChatClient("openrouter", baseURL, model, keyName, resolveKey("OPENROUTER", keyName, "OPENROUTER_API_KEY"))
	c.headers["X-Title"] = "docminer"
	if ref := envOr("DOCMINER_OPENROUTER_REFERER", ""); ref != "" {
		c.headers["HTTP-Referer"] = ref
	}
	return &OpenRouterProvider{chat: c}
}

func (o *OpenRouterProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	return o.chat.generate(ctx, req)
}
