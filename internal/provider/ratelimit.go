package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder wraps an Embedder with a client-side request rate
// limit. Batch ingestion and rechunk would otherwise burst straight into the
// provider's rate limits and fail documents on 429s.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner, allowing rps requests per second with
// the given burst.
func NewRateLimitedEmbedder(inner Embedder, rps rate.Limit, burst int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rps, burst),
	}
}

// Embed waits for a rate token, then delegates.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed rate limit: %w", err)
	}
	return e.inner.Embed(ctx, texts)
}

// ModelID delegates to the wrapped embedder; rate limiting does not change
// the embedding space.
func (e *RateLimitedEmbedder) ModelID() string {
	return e.inner.ModelID()
}
