package providers

import "context"

// GroqProvider supports LLM generation via Groq's OpenAI-compatible API.
type GroqProvider struct {
	chat *chatClient
}

func NewGroqProvider(keyName string) *GroqProvider {
	baseURL := envOr("DOCMINER_GROQ_BASE_URL", "https://api.groq.com/openai/v1")
	model := envOr("DOCMINER_GROQ_MODEL", "llama-3.1-8b-instant")
	return &GroqProvider{chat: newChatClient("groq", baseURL, model, keyName, resolveKey("GROQ", keyName, "GROQ_API_KEY"))}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	return g.chat.generate(ctx, req)
}
