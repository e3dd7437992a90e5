package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/pkg/resilience"
)

// GuardOpts configures a GuardedSource.
type GuardOpts struct {
	Breaker resilience.BreakerOpts
	Limiter resilience.LimiterOpts
	// Timeout bounds each query. Zero means no extra bound.
	Timeout time.Duration
}

// GuardedSource protects a remote source with a circuit breaker, a rate
// limiter and a per-query timeout. With a timeout a query waits for a rate
// token as long as its deadline allows; without one it fails fast.
// Rejections surface as SourceErrors so the matcher treats them like any
// other unavailable source.
type GuardedSource struct {
	src     Source
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	timeout time.Duration
}

// Compile-time interface check.
var _ Source = (*GuardedSource)(nil)

// NewGuardedSource wraps src.
func NewGuardedSource(src Source, opts GuardOpts) *GuardedSource {
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = src.Name()
	}
	return &GuardedSource{
		src:     src,
		breaker: resilience.NewBreaker(opts.Breaker),
		limiter: resilience.NewLimiter(opts.Limiter),
		timeout: opts.Timeout,
	}
}

func (g *GuardedSource) Name() string { return g.src.Name() }

// Breaker exposes the breaker state for health reporting.
func (g *GuardedSource) Breaker() *resilience.Breaker { return g.breaker }

func (g *GuardedSource) QueryByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return g.call(ctx, Query{Op: OpCategory, Category: category})
}

func (g *GuardedSource) QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error) {
	return g.call(ctx, Query{Op: OpSize, Category: category, Value: size})
}

func (g *GuardedSource) QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error) {
	return g.call(ctx, Query{Op: OpCode, Category: category, Value: code})
}

func (g *GuardedSource) call(ctx context.Context, q Query) ([]domain.Product, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	limit := g.limiter.Call
	if g.timeout > 0 {
		limit = g.limiter.CallWait
	}
	var products []domain.Product
	err := limit(ctx, func(ctx context.Context) error {
		return g.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			products, err = Run(ctx, g.src, q)
			return err
		})
	})
	if err != nil {
		var se *domain.SourceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &domain.SourceError{Source: g.src.Name(), Op: q.Op, Err: err}
	}
	return products, nil
}
