package recommend

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// SortMode orders a recommendation list.
type SortMode string

const (
	SortRecommended SortMode = "recommended"
	SortPriceAsc    SortMode = "low-high"
	SortPriceDesc   SortMode = "high-low"
	SortBrandAsc    SortMode = "brand-az"
	SortBrandDesc   SortMode = "brand-za"
)

// EmptyMessage is shown when filtering leaves nothing.
const EmptyMessage = "No parts found for this filter"

// Filters narrows and orders recommendations. Empty fields mean "All".
type Filters struct {
	Category string   `json:"category,omitempty"`
	Location string   `json:"location,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	Sort     SortMode `json:"sort,omitempty"`

	// Locale drives brand collation. The zero tag means English.
	Locale language.Tag `json:"-"`
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, domain.All)
}

// ApplyFilters returns the products matching f in the order f asks for.
// Location and brand filters only apply when the category is Speakers.
// Sorting is stable, so ties keep matcher order. The input is not modified.
func ApplyFilters(products []domain.RecommendedProduct, f Filters) []domain.RecommendedProduct {
	out := make([]domain.RecommendedProduct, 0, len(products))
	speakers := strings.EqualFold(strings.TrimSpace(f.Category), string(domain.CategorySpeakers))
	for _, p := range products {
		if !isAll(f.Category) && !strings.EqualFold(string(p.CategoryNorm), strings.TrimSpace(f.Category)) {
			continue
		}
		if speakers && !isAll(f.Location) && !atLocation(p, f.Location) {
			continue
		}
		if speakers && !isAll(f.Brand) && !strings.EqualFold(strings.TrimSpace(p.Brand), strings.TrimSpace(f.Brand)) {
			continue
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b domain.RecommendedProduct) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b domain.RecommendedProduct) int { return b.Price.Cmp(a.Price) })
	case SortBrandAsc, SortBrandDesc:
		c := collator(f.Locale)
		sign := 1
		if f.Sort == SortBrandDesc {
			sign = -1
		}
		slices.SortStableFunc(out, func(a, b domain.RecommendedProduct) int {
			return sign * c.CompareString(strings.TrimSpace(a.Brand), strings.TrimSpace(b.Brand))
		})
	}
	return out
}

// atLocation matches a full location tag ("Front - Front Door") or just its
// zone ("Front"), ignoring case.
func atLocation(p domain.RecommendedProduct, want string) bool {
	want = strings.TrimSpace(want)
	for _, loc := range p.Locations {
		zone, _, _ := strings.Cut(loc, " - ")
		if strings.EqualFold(loc, want) || strings.EqualFold(zone, want) {
			return true
		}
	}
	return false
}

// collator builds a fresh collator; collate.Collator is not safe for
// concurrent use.
func collator(tag language.Tag) *collate.Collator {
	if tag == language.Und {
		tag = language.English
	}
	return collate.New(tag, collate.IgnoreCase)
}

// Facets are the distinct values a filter menu can offer.
type Facets struct {
	Categories []domain.Category `json:"categories"`
	Locations  []string          `json:"locations"`
	Brands     []string          `json:"brands"`
}

var categoryOrder = []domain.Category{
	domain.CategorySpeakers, domain.CategorySubwoofers, domain.CategoryAmplifiers,
	domain.CategoryInstall, domain.CategoryOther,
}

// FacetsOf collects categories in display order, speaker locations in
// first-seen order and speaker brands in collation order.
func FacetsOf(products []domain.RecommendedProduct, locale language.Tag) Facets {
	var f Facets
	present := map[domain.Category]bool{}
	for _, p := range products {
		present[p.CategoryNorm] = true
		if p.CategoryNorm != domain.CategorySpeakers {
			continue
		}
		for _, loc := range p.Locations {
			if !slices.Contains(f.Locations, loc) {
				f.Locations = append(f.Locations, loc)
			}
		}
		if b := strings.TrimSpace(p.Brand); b != "" && !slices.ContainsFunc(f.Brands, func(x string) bool { return strings.EqualFold(x, b) }) {
			f.Brands = append(f.Brands, b)
		}
	}
	for _, c := range categoryOrder {
		if present[c] {
			f.Categories = append(f.Categories, c)
		}
	}
	c := collator(locale)
	slices.SortStableFunc(f.Brands, c.CompareString)
	return f
}

// ParseSort maps a wire value onto a SortMode, defaulting to recommended.
func ParseSort(s string) SortMode {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortPriceAsc, SortPriceDesc, SortBrandAsc, SortBrandDesc:
		return m
	}
	return SortRecommended
}
