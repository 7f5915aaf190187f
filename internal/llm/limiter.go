package llm

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited se devuelve cuando el presupuesto de llamadas esta agotado.
var ErrRateLimited = errors.New("llm rate limited")

// RateLimitedClient acota las llamadas al proveedor sin esperar turno:
// si no hay token disponible falla de inmediato y el llamador usa su fallback.
type RateLimitedClient struct {
	next    LLMClient
	limiter *rate.Limiter
}

func NewRateLimitedClient(next LLMClient, perSecond float64, burst int) *RateLimitedClient {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (c *RateLimitedClient) Generate(ctx context.Context, req ChatRequest) (string, error) {
	if !c.limiter.Allow() {
		return "", ErrRateLimited
	}
	return c.next.Generate(ctx, req)
}
