// Package match turns extracted part requirements into catalog products.
// Every registered catalog source is queried concurrently and in isolation:
// a failing source contributes nothing and never hides another source's
// matches.
package match

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/catalog"
	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
	"github.com/WessleyAI/wessley-fitment/pkg/fn"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

// Matcher queries catalog sources for the parts a vehicle needs.
type Matcher struct {
	sources []catalog.Source
	logger  *slog.Logger
	metrics *metrics.Fitment
	workers int
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for source failures.
func WithLogger(l *slog.Logger) Option { return func(m *Matcher) { m.logger = l } }

// WithMetrics counts source failures in fitment_source_errors_total.
func WithMetrics(f *metrics.Fitment) Option { return func(m *Matcher) { m.metrics = f } }

// WithWorkers bounds the concurrent lookups issued to one source.
func WithWorkers(n int) Option { return func(m *Matcher) { m.workers = n } }

// New creates a Matcher. Results are concatenated in source order.
func New(sources []catalog.Source, opts ...Option) *Matcher {
	m := &Matcher{sources: sources, logger: slog.Default(), workers: 4}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Sources returns the registered sources in order.
func (m *Matcher) Sources() []catalog.Source { return slices.Clone(m.sources) }

// Match returns the deduplicated products satisfying req, in emission order:
// speakers, speaker adapters, speaker harnesses, dash kit, radio harness,
// antenna adapter, per source. It never fails; unavailable sources are
// logged and skipped.
func (m *Matcher) Match(ctx context.Context, req domain.Requirements) []domain.RecommendedProduct {
	if req.Empty() || len(m.sources) == 0 {
		return nil
	}

	perSource := fn.FanOut(fn.Map(m.sources, func(src catalog.Source) func() fn.Result[[]domain.RecommendedProduct] {
		stage := fn.TracedStage("match.source", func(ctx context.Context, req domain.Requirements) fn.Result[[]domain.RecommendedProduct] {
			return m.matchSource(ctx, src, req)
		})
		return func() fn.Result[[]domain.RecommendedProduct] { return stage(ctx, req) }
	})...)

	var all []domain.RecommendedProduct
	for i, r := range perSource {
		products, err := r.Unwrap()
		if err != nil {
			name := m.sources[i].Name()
			m.logger.WarnContext(ctx, "match: source unavailable, skipping", "source", name, "error", err)
			if m.metrics != nil {
				m.metrics.SourceErrors(name).Inc()
			}
			continue
		}
		all = append(all, products...)
	}
	return Dedupe(all)
}

// lookup is one catalog query plus the post-filter applied to its results.
type lookup struct {
	run  func(ctx context.Context) ([]domain.Product, error)
	keep func(domain.Product) bool
	// one keeps only the first surviving product.
	one       bool
	locations []string
}

// matchSource runs every lookup against src. The first failure fails the
// whole source.
func (m *Matcher) matchSource(ctx context.Context, src catalog.Source, req domain.Requirements) fn.Result[[]domain.RecommendedProduct] {
	lookups := plan(src, req)
	results := fn.ParMapResult(lookups, m.workers, func(l lookup) fn.Result[[]domain.RecommendedProduct] {
		products, err := l.run(ctx)
		if err != nil {
			return fn.Err[[]domain.RecommendedProduct](err)
		}
		var out []domain.RecommendedProduct
		for _, p := range products {
			if !l.keep(p) {
				continue
			}
			out = append(out, domain.RecommendedProduct{Product: p, Locations: slices.Clone(l.locations)})
			if l.one {
				break
			}
		}
		return fn.Ok(out)
	})
	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return fn.Err[[]domain.RecommendedProduct](err)
	}
	return fn.Ok(slices.Concat(collected...))
}

// plan lists the lookups for req in emission order.
func plan(src catalog.Source, req domain.Requirements) []lookup {
	var out []lookup
	for _, need := range req.Sizes {
		size := need.Size
		out = append(out, lookup{
			run: func(ctx context.Context) ([]domain.Product, error) {
				return src.QueryBySize(ctx, domain.CatalogSpeaker, size)
			},
			keep:      func(p domain.Product) bool { return catalog.HasSize(p, size) },
			locations: need.Locations,
		})
	}
	out = append(out, exact(src, domain.CatalogSpeakerAdapter, req.Adapters)...)
	out = append(out, exact(src, domain.CatalogSpeakerHarness, req.Harnesses)...)
	for _, part := range []struct{ category, code string }{
		{domain.CatalogDashKit, req.DashKit},
		{domain.CatalogRadioHarness, req.RadioHarness},
		{domain.CatalogAntennaAdapter, req.Antenna},
	} {
		if part.code == "" {
			continue
		}
		out = append(out, lookup{
			run: func(ctx context.Context) ([]domain.Product, error) {
				return src.QueryByCode(ctx, part.category, part.code)
			},
			keep: func(p domain.Product) bool { return catalog.HasCode(p, part.code) },
			one:  true,
		})
	}
	return out
}

// exact builds lookups whose part numbers must equal a code verbatim.
func exact(src catalog.Source, category string, codes []string) []lookup {
	out := make([]lookup, 0, len(codes))
	for _, code := range codes {
		out = append(out, lookup{
			run: func(ctx context.Context) ([]domain.Product, error) {
				return src.QueryByCode(ctx, category, code)
			},
			keep: func(p domain.Product) bool { return strings.TrimSpace(p.MetraCode) == code },
		})
	}
	return out
}

// Dedupe drops keyless products and later duplicates (by id, else sku,
// else name), then attaches the display category.
func Dedupe(products []domain.RecommendedProduct) []domain.RecommendedProduct {
	keyed := fn.Filter(products, func(p domain.RecommendedProduct) bool { return p.Key() != "" })
	unique := fn.UniqueBy(keyed, func(p domain.RecommendedProduct) string { return p.Key() })
	for i := range unique {
		unique[i].CategoryNorm = normalize.Category(unique[i].Category)
	}
	return unique
}
