package recommend

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

func rp(id, brand string, cat domain.Category, price string, locs ...string) domain.RecommendedProduct {
	p := domain.RecommendedProduct{
		Product:      domain.Product{ID: id, Name: id, Brand: brand},
		CategoryNorm: cat,
		Locations:    locs,
	}
	if price != "" {
		p.Price = decimal.RequireFromString(price)
	}
	return p
}

func keys(products []domain.RecommendedProduct) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Key()
	}
	return out
}

func sample() []domain.RecommendedProduct {
	return []domain.RecommendedProduct{
		rp("front-pioneer", "Pioneer", domain.CategorySpeakers, "89.99", "Front - Front Door"),
		rp("rear-kicker", "Kicker", domain.CategorySpeakers, "129.00", "Rear - Rear Deck"),
		rp("front-kicker", "Kicker", domain.CategorySpeakers, "", "Front - Front Door"),
		rp("dash-kit", "Metra", domain.CategoryInstall, "24.99"),
		rp("harness", "", domain.CategoryInstall, "14.50"),
	}
}

func TestApplyFilters_All(t *testing.T) {
	got := ApplyFilters(sample(), Filters{Category: domain.All, Location: domain.All, Brand: domain.All})
	assert.Equal(t, keys(sample()), keys(got))

	got = ApplyFilters(sample(), Filters{})
	assert.Equal(t, keys(sample()), keys(got))
}

func TestApplyFilters_Category(t *testing.T) {
	got := ApplyFilters(sample(), Filters{Category: "Install"})
	assert.Equal(t, []string{"dash-kit", "harness"}, keys(got))

	got = ApplyFilters(sample(), Filters{Category: "Amplifiers"})
	assert.Empty(t, got)
}

func TestApplyFilters_LocationAndBrandOnlyForSpeakers(t *testing.T) {
	got := ApplyFilters(sample(), Filters{Category: "Speakers", Location: "Front - Front Door"})
	assert.Equal(t, []string{"front-pioneer", "front-kicker"}, keys(got))

	got = ApplyFilters(sample(), Filters{Category: "Speakers", Location: "rear"})
	assert.Equal(t, []string{"rear-kicker"}, keys(got), "a bare zone matches every location in it")

	got = ApplyFilters(sample(), Filters{Category: "Speakers", Brand: "kicker"})
	assert.Equal(t, []string{"rear-kicker", "front-kicker"}, keys(got))

	got = ApplyFilters(sample(), Filters{Category: "Speakers", Brand: "Kicker", Location: "Front - Front Door"})
	assert.Equal(t, []string{"front-kicker"}, keys(got))

	// Outside Speakers the location and brand filters are ignored.
	got = ApplyFilters(sample(), Filters{Category: "Install", Brand: "Kicker", Location: "Rear - Rear Deck"})
	assert.Equal(t, []string{"dash-kit", "harness"}, keys(got))
	got = ApplyFilters(sample(), Filters{Category: domain.All, Brand: "Kicker"})
	assert.Len(t, got, 5)
}

func TestApplyFilters_PriceSort(t *testing.T) {
	got := ApplyFilters(sample(), Filters{Sort: SortPriceAsc})
	assert.Equal(t, []string{"front-kicker", "harness", "dash-kit", "front-pioneer", "rear-kicker"}, keys(got))

	got = ApplyFilters(sample(), Filters{Sort: SortPriceDesc})
	assert.Equal(t, []string{"rear-kicker", "front-pioneer", "dash-kit", "harness", "front-kicker"}, keys(got))
}

func TestApplyFilters_SortIsStable(t *testing.T) {
	in := []domain.RecommendedProduct{
		rp("a", "Kicker", domain.CategorySpeakers, "10"),
		rp("b", "JBL", domain.CategorySpeakers, "10"),
		rp("c", "kicker", domain.CategorySpeakers, "5"),
		rp("d", "Kicker", domain.CategorySpeakers, "10"),
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, keys(ApplyFilters(in, Filters{Sort: SortPriceAsc})))
	assert.Equal(t, []string{"a", "b", "d", "c"}, keys(ApplyFilters(in, Filters{Sort: SortPriceDesc})))
	assert.Equal(t, []string{"b", "a", "c", "d"}, keys(ApplyFilters(in, Filters{Sort: SortBrandAsc})))
	assert.Equal(t, []string{"a", "c", "d", "b"}, keys(ApplyFilters(in, Filters{Sort: SortBrandDesc})))
	assert.Equal(t, keys(in), keys(ApplyFilters(in, Filters{Sort: SortRecommended})))
}

func TestApplyFilters_BrandCollation(t *testing.T) {
	in := []domain.RecommendedProduct{
		rp("z", "Zebra", domain.CategorySpeakers, ""),
		rp("e", "Éclat", domain.CategorySpeakers, ""),
		rp("a", "alpine", domain.CategorySpeakers, ""),
		rp("none", "", domain.CategorySpeakers, ""),
	}
	got := ApplyFilters(in, Filters{Sort: SortBrandAsc})
	assert.Equal(t, []string{"none", "a", "e", "z"}, keys(got))

	got = ApplyFilters(in, Filters{Sort: SortBrandDesc, Locale: language.French})
	assert.Equal(t, []string{"z", "e", "a", "none"}, keys(got))
}

func TestApplyFilters_DoesNotModifyInput(t *testing.T) {
	in := sample()
	before := keys(in)
	ApplyFilters(in, Filters{Sort: SortPriceDesc})
	assert.Equal(t, before, keys(in))
}

func TestFacetsOf(t *testing.T) {
	f := FacetsOf(sample(), language.Und)
	assert.Equal(t, []domain.Category{domain.CategorySpeakers, domain.CategoryInstall}, f.Categories)
	assert.Equal(t, []string{"Front - Front Door", "Rear - Rear Deck"}, f.Locations)
	assert.Equal(t, []string{"Kicker", "Pioneer"}, f.Brands, "install brands are not offered")

	empty := FacetsOf(nil, language.English)
	assert.Empty(t, empty.Categories)
	assert.Empty(t, empty.Brands)
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, SortPriceAsc, ParseSort(" Low-High "))
	assert.Equal(t, SortBrandDesc, ParseSort("brand-za"))
	assert.Equal(t, SortRecommended, ParseSort(""))
	assert.Equal(t, SortRecommended, ParseSort("newest"))
}
