package fitment

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Index projects selector options out of a fitment Source.
type Index struct {
	src Source
}

// NewIndex creates an Index over src.
func NewIndex(src Source) *Index {
	return &Index{src: src}
}

// YearOptions returns every covered year, newest first.
func (ix *Index) YearOptions(ctx context.Context) ([]int, error) {
	if opts, ok := ix.src.(OptionSource); ok {
		years, err := opts.Years(ctx)
		if err != nil {
			return nil, fmt.Errorf("fitment: year options: %w", err)
		}
		return sortYears(years), nil
	}

	records, err := ix.src.QueryFitment(ctx, Query{})
	if err != nil {
		return nil, fmt.Errorf("fitment: year options: %w", err)
	}
	var years []int
	for _, r := range records {
		years = append(years, r.YearList()...)
	}
	return sortYears(years), nil
}

// MakeOptions returns distinct makes covering year, or all makes when year
// is zero.
func (ix *Index) MakeOptions(ctx context.Context, year int) ([]string, error) {
	if opts, ok := ix.src.(OptionSource); ok {
		makes, err := opts.Makes(ctx, max(year, 0))
		if err != nil {
			return nil, fmt.Errorf("fitment: make options: %w", err)
		}
		return distinctNames(makes), nil
	}

	records, err := ix.src.QueryFitment(ctx, Query{Year: max(year, 0)})
	if err != nil {
		return nil, fmt.Errorf("fitment: make options: %w", err)
	}
	makes := make([]string, 0, len(records))
	for _, r := range records {
		makes = append(makes, r.Make)
	}
	return distinctNames(makes), nil
}

// ModelOptions returns distinct models filtered by year and make. Either
// filter is relaxed when its argument is zero or blank.
func (ix *Index) ModelOptions(ctx context.Context, year int, makeName string) ([]string, error) {
	if opts, ok := ix.src.(OptionSource); ok {
		models, err := opts.Models(ctx, max(year, 0), makeName)
		if err != nil {
			return nil, fmt.Errorf("fitment: model options: %w", err)
		}
		return distinctNames(models), nil
	}

	records, err := ix.src.QueryFitment(ctx, Query{Year: max(year, 0), Make: makeName})
	if err != nil {
		return nil, fmt.Errorf("fitment: model options: %w", err)
	}
	models := make([]string, 0, len(records))
	for _, r := range records {
		models = append(models, r.Model)
	}
	return distinctNames(models), nil
}

func sortYears(years []int) []int {
	years = slices.DeleteFunc(slices.Clone(years), func(y int) bool { return y <= 0 })
	slices.SortFunc(years, func(a, b int) int { return cmp.Compare(b, a) })
	return slices.Compact(years)
}

// distinctNames dedupes case-insensitively, keeping the first display form,
// and sorts ascending.
func distinctNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := normalize.Name(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(n))
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return cmp.Or(cmp.Compare(normalize.Name(a), normalize.Name(b)), cmp.Compare(a, b))
	})
	return out
}
