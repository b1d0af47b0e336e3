package llm

import (
	"context"

	"golang.org/x/time/rate"

	"relator-ai/internal/domain"
	"relator-ai/internal/infra/config"
)

// RateLimitedProvider throttles outbound calls to a provider. Waiting
// respects the caller's context, so cancellation during the wait surfaces
// as ctx.Err() before any network activity.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a token-bucket limiter.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Model implements domain.LLMProvider.
func (p *RateLimitedProvider) Model() string { return p.inner.Model() }

// MaxOutputTokens implements domain.LLMProvider.
func (p *RateLimitedProvider) MaxOutputTokens() int { return p.inner.MaxOutputTokens() }

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)
