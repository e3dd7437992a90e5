// Package fitment resolves a vehicle selection against the fitment knowledge
// base and derives the installation parts it calls for.
package fitment

import (
	"context"
	"slices"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Query filters fitment records. Zero values mean "any".
type Query struct {
	Year  int
	Make  string
	Model string
}

// Matches reports whether r satisfies q.
func (q Query) Matches(r domain.FitmentRecord) bool {
	if q.Year > 0 && !r.Covers(q.Year) {
		return false
	}
	if q.Make != "" && !normalize.EqualName(q.Make, r.Make) {
		return false
	}
	if q.Model != "" && !normalize.EqualName(q.Model, r.Model) {
		return false
	}
	return true
}

// Source is any backing store of fitment records. Results must be returned in
// dataset order (ascending Seq).
type Source interface {
	QueryFitment(ctx context.Context, q Query) ([]domain.FitmentRecord, error)
}

// OptionSource is implemented by sources that can project selector options
// without returning whole records.
type OptionSource interface {
	Years(ctx context.Context) ([]int, error)
	Makes(ctx context.Context, year int) ([]string, error)
	Models(ctx context.Context, year int, makeName string) ([]string, error)
}

// MemorySource serves records from an in-memory slice.
type MemorySource struct {
	records []domain.FitmentRecord
}

// Compile-time interface check.
var _ Source = (*MemorySource)(nil)

// NewMemorySource creates a MemorySource. Records keep their slice order;
// Seq is reassigned to match it.
func NewMemorySource(records []domain.FitmentRecord) *MemorySource {
	rs := slices.Clone(records)
	for i := range rs {
		rs[i].Seq = i
	}
	return &MemorySource{records: rs}
}

// QueryFitment returns matching records in dataset order.
func (m *MemorySource) QueryFitment(_ context.Context, q Query) ([]domain.FitmentRecord, error) {
	var out []domain.FitmentRecord
	for _, r := range m.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of records held.
func (m *MemorySource) Len() int { return len(m.records) }

// All returns a copy of every record.
func (m *MemorySource) All() []domain.FitmentRecord { return slices.Clone(m.records) }
