package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedLLM spaces calls to an upstream model to stay under its request quota.
type RateLimitedLLM struct {
	inner   LLMProvider
	limiter *rate.Limiter
}

// WithRateLimit wraps p with a limiter of rps requests per second. rps <= 0 disables limiting.
func WithRateLimit(p LLMProvider, rps float64) LLMProvider {
	if rps <= 0 {
		return p
	}
	return &RateLimitedLLM{inner: p, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (r *RateLimitedLLM) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return GenerateResponse{}, ProviderInfo{}, fmt.Errorf("rate limiter wait: %w", err)
	}
	return r.inner.Generate(ctx, req)
}
