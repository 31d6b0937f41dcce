package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docminer/internal/config"
	"docminer/internal/logging"
	"docminer/internal/util"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured provider chains. It is itself an LLMProvider
// (failing over in order) and an EmbeddingProvider (first provider only, since
// vectors from different models cannot share an index).
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	logger         *slog.Logger
}

func NewManager(cfg config.Config, logger *slog.Logger) (*Manager, error) {
	m := &Manager{logger: logging.OrDefault(logger)}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: WithRateLimit(llm, cfg.LLMRequestsPerSec)})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

// NewStaticManager wires already-built providers, used by tests and embedders of the library.
func NewStaticManager(llms []NamedLLMProvider, embeds []NamedEmbedProvider, logger *slog.Logger) *Manager {
	return &Manager{llmProviders: llms, embedProviders: embeds, logger: logging.OrDefault(logger)}
}

func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(m.embedProviders) == 0 {
		return nil, ProviderInfo{}, fmt.Errorf("no embedding provider configured")
	}
	return m.embedProviders[0].Provider.Embed(ctx, req)
}

// Generate tries providers in preferred order, moving on only for quota, rate and
// transient failures. The last error is returned wrapped in util.ErrModelInvocation.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if len(m.llmProviders) == 0 {
		return GenerateResponse{}, ProviderInfo{}, fmt.Errorf("%w: no llm provider configured", util.ErrModelInvocation)
	}
	var lastErr error
	var lastInfo ProviderInfo
	for _, i := range m.PreferredLLMOrder() {
		p := m.llmProviders[i]
		resp, info, err := p.Provider.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr, lastInfo = err, info
		kind := ClassifyError(err)
		m.logger.Warn("llm provider failed", "provider", p.Ref.Raw, "operation", req.Operation, "kind", kind, "err", err)
		if !Retryable(kind) || ctx.Err() != nil {
			break
		}
	}
	if errors.Is(lastErr, util.ErrModelInvocation) {
		return GenerateResponse{}, lastInfo, lastErr
	}
	return GenerateResponse{}, lastInfo, fmt.Errorf("%w: %w", util.ErrModelInvocation, lastErr)
}

func (m *Manager) EmbedCount() int {
	return len(m.embedProviders)
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) EmbedProviderRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for i := range m.embedProviders {
		out = append(out, m.embedProviders[i].Ref)
	}
	return out
}

// PreferredLLMOrder puts real providers ahead of the mock.
func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "openrouter":
		return NewOpenRouterProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
