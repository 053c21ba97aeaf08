package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider 在调用上游前按令牌桶限速
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider rps <= 0 时不限速
func NewRateLimitedProvider(provider Provider, rps float64, burst int) *RateLimitedProvider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (p *RateLimitedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &Error{Code: ErrRateLimited, Message: err.Error(), Provider: p.provider.Name()}
	}
	return p.provider.Completion(ctx, req)
}

func (p *RateLimitedProvider) Name() string { return p.provider.Name() }
