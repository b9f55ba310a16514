package search

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token bucket shared by all callers.
type RateLimited struct {
	Provider Provider
	limiter  *rate.Limiter
}

// NewRateLimited allows perSecond requests per second with a burst of one.
// perSecond <= 0 returns p unchanged.
func NewRateLimited(p Provider, perSecond float64) Provider {
	if perSecond <= 0 {
		return p
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (r *RateLimited) Name() string { return r.Provider.Name() }

func (r *RateLimited) Search(ctx context.Context, req Request) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Search(ctx, req)
}
