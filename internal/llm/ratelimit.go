package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/temirov/structgen/internal/pipeline"
)

// RateLimited delays calls to the wrapped generator with a token bucket shared by every
// pipeline that uses it. A wait interrupted by the caller's context is returned as an error,
// which the pipeline records as a service error.
type RateLimited struct {
	next    pipeline.Generator
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerSecond calls with the given burst. A non-positive rate
// disables limiting.
func NewRateLimited(next pipeline.Generator, requestsPerSecond float64, burst int) *RateLimited {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Generate(ctx context.Context, request pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return pipeline.LLMResponse{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, request)
}
