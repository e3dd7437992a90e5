// Package recommend turns a vehicle selection into the filtered, sorted list
// of parts a salesperson sees. It also owns the per-terminal session that
// discards stale resolutions and the NATS bridge POS terminals talk to.
package recommend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/engine/match"
	"github.com/WessleyAI/wessley-fitment/pkg/fn"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

// Result is one answer to getRecommendedProducts.
type Result struct {
	Selector     domain.Selector             `json:"selector"`
	Fitment      *domain.FitmentRecord       `json:"fitment"`
	Maestro      *domain.MaestroRecord       `json:"maestro,omitempty"`
	Requirements domain.Requirements         `json:"requirements"`
	Products     []domain.RecommendedProduct `json:"products"`
	Facets       Facets                      `json:"facets"`
	Message      string                      `json:"message,omitempty"`
}

// Recommender is what a Session and the terminal bridge need from Service.
type Recommender interface {
	Recommend(ctx context.Context, sel domain.Selector, f Filters) (Result, error)
}

// Service wires resolver, extractor and matcher into one call.
type Service struct {
	resolver *fitment.Resolver
	matcher  *match.Matcher
	metrics  *metrics.Fitment
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger means slog.Default and nil
// metrics get a private registry.
func NewService(resolver *fitment.Resolver, matcher *match.Matcher, m *metrics.Fitment, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewFitment(nil)
	}
	return &Service{resolver: resolver, matcher: matcher, metrics: m, logger: logger}
}

// Recommend resolves sel and returns the recommendations for it. An
// incomplete selector or an unknown vehicle gives an empty result. A failing
// fitment source is logged and counted and also gives an empty result; only
// cancellation is returned as an error.
func (s *Service) Recommend(ctx context.Context, sel domain.Selector, f Filters) (Result, error) {
	start := time.Now()
	defer s.metrics.ObserveRequest(start)

	rec, err := s.resolve(ctx, sel).Unwrap()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		s.logger.WarnContext(ctx, "recommend: fitment source unavailable", "selector", sel.String(), "error", err)
		s.metrics.SourceErrors("fitment").Inc()
		rec = nil
	}
	res := s.forFitment(ctx, rec, f)
	res.Selector = sel
	res.Maestro = s.maestro(ctx, sel)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// RecommendForFitment skips resolution. A nil record gives an empty result.
func (s *Service) RecommendForFitment(ctx context.Context, rec *domain.FitmentRecord, f Filters) Result {
	start := time.Now()
	defer s.metrics.ObserveRequest(start)

	res := s.forFitment(ctx, rec, f)
	if rec != nil {
		res.Selector = domain.Selector{Year: rec.YearStart, Make: rec.Make, Model: rec.Model}
	}
	return res
}

func (s *Service) resolve(ctx context.Context, sel domain.Selector) fn.Result[*domain.FitmentRecord] {
	stage := fn.LoggedStage("recommend.resolve", s.logger, fn.TracedStage("recommend.resolve",
		func(ctx context.Context, sel domain.Selector) fn.Result[*domain.FitmentRecord] {
			rec, err := s.resolver.Find(ctx, sel)
			if err != nil {
				return fn.Err[*domain.FitmentRecord](err)
			}
			return fn.Ok(rec)
		}))
	return stage(ctx, sel)
}

// maestro looks up radio-interface data. Failures only cost the block.
func (s *Service) maestro(ctx context.Context, sel domain.Selector) *domain.MaestroRecord {
	m, err := s.resolver.Maestro(ctx, sel)
	if err != nil {
		s.logger.WarnContext(ctx, "recommend: maestro source unavailable", "selector", sel.String(), "error", err)
		s.metrics.SourceErrors("maestro").Inc()
		return nil
	}
	return m
}

func (s *Service) forFitment(ctx context.Context, rec *domain.FitmentRecord, f Filters) Result {
	res := Result{Fitment: rec, Products: []domain.RecommendedProduct{}, Message: EmptyMessage}
	if rec == nil {
		return res
	}

	res.Requirements = fitment.ExtractRequirements(rec)
	stage := fn.LoggedStage("recommend.match", s.logger, fn.TracedStage("recommend.match",
		func(ctx context.Context, req domain.Requirements) fn.Result[[]domain.RecommendedProduct] {
			return fn.Ok(s.matcher.Match(ctx, req))
		}))
	all := stage(ctx, res.Requirements).UnwrapOr(nil)

	res.Facets = FacetsOf(all, f.Locale)
	if filtered := ApplyFilters(all, f); len(filtered) > 0 {
		res.Products = filtered
		res.Message = ""
	}
	return res
}

// IsSuperseded reports whether err means a newer selection replaced this one.
func IsSuperseded(err error) bool { return errors.Is(err, domain.ErrSuperseded) }
