package fitment

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// trimAll marks a trim-agnostic record.
const trimAll = "all"

// Resolver picks the single applicable fitment record for a vehicle.
type Resolver struct {
	src     Source
	maestro MaestroSource
	logger  *slog.Logger
}

// NewResolver creates a Resolver over src.
func NewResolver(src Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{src: src, logger: logger}
}

// WithMaestro adds a Maestro radio-interface lookup.
func (r *Resolver) WithMaestro(m MaestroSource) *Resolver {
	r.maestro = m
	return r
}

// Maestro returns the radio-interface entry for sel, or nil when there is
// no Maestro data or no entry for the vehicle.
func (r *Resolver) Maestro(ctx context.Context, sel domain.Selector) (*domain.MaestroRecord, error) {
	if r.maestro == nil || !sel.Complete() {
		return nil, nil
	}
	sel.Make, sel.Model = strings.TrimSpace(sel.Make), strings.TrimSpace(sel.Model)
	m, err := r.maestro.QueryMaestro(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("fitment: maestro %s: %w", sel, err)
	}
	return m, nil
}

// FindFitment returns the record for (year, make, model), or nil when any
// argument is missing or nothing matches. A record whose trim is "All" wins;
// otherwise the first match in dataset order.
func (r *Resolver) FindFitment(ctx context.Context, year int, makeName, model string) (*domain.FitmentRecord, error) {
	return r.Find(ctx, domain.Selector{Year: year, Make: makeName, Model: model})
}

// Find is FindFitment for a Selector.
func (r *Resolver) Find(ctx context.Context, sel domain.Selector) (*domain.FitmentRecord, error) {
	if !sel.Complete() {
		return nil, nil
	}
	q := Query{Year: sel.Year, Make: strings.TrimSpace(sel.Make), Model: strings.TrimSpace(sel.Model)}
	records, err := r.src.QueryFitment(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fitment: find %s: %w", sel, err)
	}

	// Remote stores may over-match; re-check before choosing.
	records = slices.DeleteFunc(records, func(rec domain.FitmentRecord) bool { return !q.Matches(rec) })
	if len(records) == 0 {
		r.logger.Debug("fitment: no match", "selector", sel.String())
		return nil, nil
	}
	slices.SortStableFunc(records, func(a, b domain.FitmentRecord) int { return a.Seq - b.Seq })

	chosen := records[0]
	for _, rec := range records {
		if strings.EqualFold(strings.TrimSpace(rec.Trim), trimAll) {
			chosen = rec
			break
		}
	}
	return &chosen, nil
}
