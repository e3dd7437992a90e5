package fitment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func civic(trim string) domain.FitmentRecord {
	return domain.FitmentRecord{
		YearStart: 2018, YearEnd: 2022, Make: "Honda", Model: "Civic", Trim: trim,
		Radio: &domain.RadioParts{DashKit: "95-7810", Harness: "70-1729", AntennaAdapter: "40-HD11"},
		Speakers: map[string][]domain.SpeakerSlot{
			"front": {{Location: "Front Door", Size: `6.5"`}},
			"rear":  {{Location: "Rear Deck", Size: `6x9"`}},
		},
	}
}

func sampleSource() *MemorySource {
	return NewMemorySource([]domain.FitmentRecord{
		civic("EX"),
		{YearStart: 2016, YearEnd: 2020, Make: "Honda", Model: "Accord"},
		{YearStart: 2010, YearEnd: 2012, Make: "honda ", Model: "CR-V"},
		{YearStart: 2019, YearEnd: 2019, Make: "Toyota", Model: "Camry"},
		{YearStart: 2015, YearEnd: 2020, Years: []int{2015, 2019}, Make: "Ford", Model: "F-150"},
	})
}

// failingSource always errors.
type failingSource struct{ err error }

func (f failingSource) QueryFitment(context.Context, Query) ([]domain.FitmentRecord, error) {
	return nil, f.err
}

func TestYearOptions(t *testing.T) {
	ix := NewIndex(sampleSource())
	years, err := ix.YearOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2021, 2020, 2019, 2018, 2017, 2016, 2015, 2012, 2011, 2010}, years)
}

func TestMakeOptions(t *testing.T) {
	ix := NewIndex(sampleSource())
	ctx := context.Background()

	all, err := ix.MakeOptions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ford", "Honda", "Toyota"}, all)

	in2011, err := ix.MakeOptions(ctx, 2011)
	require.NoError(t, err)
	assert.Equal(t, []string{"honda"}, in2011)

	// 2016 is inside the F-150 range but not in its explicit years.
	in2016, err := ix.MakeOptions(ctx, 2016)
	require.NoError(t, err)
	assert.Equal(t, []string{"Honda"}, in2016)
}

func TestModelOptions(t *testing.T) {
	ix := NewIndex(sampleSource())
	ctx := context.Background()

	models, err := ix.ModelOptions(ctx, 2019, " HONDA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Accord", "Civic"}, models)

	models, err = ix.ModelOptions(ctx, 0, "honda")
	require.NoError(t, err)
	assert.Equal(t, []string{"Accord", "Civic", "CR-V"}, models)

	models, err = ix.ModelOptions(ctx, 2019, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Accord", "Camry", "Civic", "F-150"}, models)
}

func TestIndexSourceError(t *testing.T) {
	boom := errors.New("neo4j down")
	ix := NewIndex(failingSource{err: boom})
	_, err := ix.YearOptions(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFindFitmentTieBreak(t *testing.T) {
	ctx := context.Background()
	for _, order := range [][]string{{"LX", "All"}, {"All", "LX"}} {
		src := NewMemorySource([]domain.FitmentRecord{civic(order[0]), civic(order[1])})
		rec, err := NewResolver(src, quietLogger()).FindFitment(ctx, 2020, "Honda", "Civic")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "All", rec.Trim, "order %v", order)
	}

	src := NewMemorySource([]domain.FitmentRecord{civic("LX"), civic("EX")})
	rec, err := NewResolver(src, quietLogger()).FindFitment(ctx, 2020, "Honda", "Civic")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "LX", rec.Trim)
}

func TestFindFitmentRangeContainment(t *testing.T) {
	r := NewResolver(sampleSource(), quietLogger())
	ctx := context.Background()
	for _, year := range []int{2018, 2020, 2022} {
		rec, err := r.FindFitment(ctx, year, "Honda", "Civic")
		require.NoError(t, err)
		assert.NotNil(t, rec, "year %d", year)
	}
	for _, year := range []int{2017, 2023} {
		rec, err := r.FindFitment(ctx, year, "Honda", "Civic")
		require.NoError(t, err)
		assert.Nil(t, rec, "year %d", year)
	}
}

func TestFindFitmentNoMatchSafety(t *testing.T) {
	r := NewResolver(sampleSource(), quietLogger())
	ctx := context.Background()
	cases := []struct {
		year        int
		make, model string
	}{
		{0, "Honda", "Civic"},
		{2020, "", "Civic"},
		{2020, "Honda", ""},
		{2020, "Honda", "  "},
		{2020, "Honda", "Odyssey"},
		{1999, "Honda", "Civic"},
		{2016, "Ford", "F-150"},
	}
	for _, tc := range cases {
		rec, err := r.FindFitment(ctx, tc.year, tc.make, tc.model)
		assert.NoError(t, err)
		assert.Nil(t, rec, "%d %q %q", tc.year, tc.make, tc.model)
	}
}

func TestFindFitmentCaseAndSpace(t *testing.T) {
	r := NewResolver(sampleSource(), quietLogger())
	rec, err := r.FindFitment(context.Background(), 2011, "  HONDA", "cr-v ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "CR-V", rec.Model)
}

func TestFindFitmentSourceError(t *testing.T) {
	boom := errors.New("timeout")
	rec, err := NewResolver(failingSource{err: boom}, quietLogger()).FindFitment(context.Background(), 2020, "Honda", "Civic")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, boom)
}

// overMatching ignores the query, as a loose remote store might.
type overMatching struct{ records []domain.FitmentRecord }

func (o overMatching) QueryFitment(context.Context, Query) ([]domain.FitmentRecord, error) {
	return o.records, nil
}

func TestFindFitmentRechecksRemoteResults(t *testing.T) {
	accord := domain.FitmentRecord{YearStart: 2016, YearEnd: 2020, Make: "Honda", Model: "Accord", Trim: "All", Seq: 0}
	lx := civic("LX")
	lx.Seq = 1
	r := NewResolver(overMatching{records: []domain.FitmentRecord{accord, lx}}, quietLogger())
	rec, err := r.FindFitment(context.Background(), 2020, "Honda", "Civic")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "LX", rec.Trim)
}

func TestExtractRequirements(t *testing.T) {
	rec := civic("EX")
	req := ExtractRequirements(&rec)

	require.Len(t, req.Sizes, 2)
	assert.Equal(t, domain.SizeNeed{Size: "6.5", Locations: []string{"Front - Front Door"}}, req.Sizes[0])
	assert.Equal(t, domain.SizeNeed{Size: "6x9", Locations: []string{"Rear - Rear Deck"}}, req.Sizes[1])
	assert.Equal(t, "95-7810", req.DashKit)
	assert.Equal(t, "70-1729", req.RadioHarness)
	assert.Equal(t, "40-HD11", req.Antenna)
	assert.Empty(t, req.Adapters)
	assert.Empty(t, req.Harnesses)
}

func TestExtractRequirementsSentinels(t *testing.T) {
	rec := domain.FitmentRecord{
		Radio: &domain.RadioParts{DashKit: "N/R", Harness: "N/R", AntennaAdapter: "  "},
	}
	req := ExtractRequirements(&rec)
	assert.Empty(t, req.DashKit)
	assert.Empty(t, req.Antenna)
	// The radio harness has no sentinel.
	assert.Equal(t, "N/R", req.RadioHarness)

	assert.True(t, ExtractRequirements(nil).Empty())
	assert.True(t, ExtractRequirements(&domain.FitmentRecord{}).Empty())
}

func TestExtractRequirementsSlots(t *testing.T) {
	rec := domain.FitmentRecord{Speakers: map[string][]domain.SpeakerSlot{
		"front": {
			{Location: "Front Door", Size: `6 1/2"`, Adapter: " 82-3000 ", Harness: "72-7800"},
			{Location: "Dash", Size: "3.5"},
			{Size: "6.5"},
		},
		"rear": {
			{Location: "Rear Door", Size: "6.5", Adapter: "82-3000", Harness: "72-7800"},
			{Location: "Rear Deck", Size: ""},
		},
		"other": {{Zone: "", Location: "", Size: "8", Harness: "72-1000"}},
	}}
	req := ExtractRequirements(&rec)

	locs, ok := req.LocationsFor("6.5")
	require.True(t, ok)
	assert.Equal(t, []string{"Front - Front Door", "Front", "Rear - Rear Door"}, locs)

	locs, ok = req.LocationsFor("8")
	require.True(t, ok)
	assert.Equal(t, []string{"Other"}, locs)

	assert.Equal(t, []string{"82-3000"}, req.Adapters)
	assert.Equal(t, []string{"72-7800", "72-1000"}, req.Harnesses)
	assert.Len(t, req.Sizes, 3)
}

func TestLocationTagDefaultsToFront(t *testing.T) {
	assert.Equal(t, "Front - Kick Panel", LocationTag(domain.SpeakerSlot{Location: "Kick Panel"}))
	assert.Equal(t, "Front", LocationTag(domain.SpeakerSlot{}))
	assert.Equal(t, "Rear - Deck", LocationTag(domain.SpeakerSlot{Zone: "rear", Location: " Deck "}))
}

func TestGroupSlots(t *testing.T) {
	rec := domain.FitmentRecord{Speakers: map[string][]domain.SpeakerSlot{
		"front": {{Location: "Front Door"}, {Location: "Dash Center"}, {Location: "A-Pillar"}},
		"rear":  {{Location: "Rear Deck"}, {Location: "Rear Door"}, {Location: "Subwoofer Enclosure"}},
		"other": {{Location: "Sound Bar"}},
	}}
	groups := GroupSlots(&rec)
	assert.Len(t, groups[GroupFront], 1)
	assert.Len(t, groups[GroupDash], 1, "dash wins over center")
	assert.Len(t, groups[GroupPillar], 1)
	assert.Len(t, groups[GroupDeck], 1, "deck wins over rear")
	assert.Len(t, groups[GroupRear], 1)
	assert.Len(t, groups[GroupSubwoofers], 1)
	assert.Len(t, groups[GroupOther], 1)
	assert.Empty(t, GroupSlots(nil))
}

func TestLoadFileJSON(t *testing.T) {
	src, err := LoadFile("testdata/vehicles.json", quietLogger())
	require.NoError(t, err)
	// The record without a make is skipped.
	require.Equal(t, 3, src.Len())

	all := src.All()
	assert.Equal(t, "Honda", all[0].Make)
	assert.Equal(t, 2015, all[1].YearStart)
	assert.Equal(t, 2015, all[1].YearEnd)
	assert.Equal(t, "Sedan", all[1].BodyStyle)
	assert.Equal(t, []int{2015, 2017, 2019}, all[2].Years)
	for i, r := range all {
		assert.Equal(t, i, r.Seq)
	}

	r := NewResolver(src, quietLogger())
	camry, err := r.FindFitment(context.Background(), 2015, "toyota", "camry")
	require.NoError(t, err)
	require.NotNil(t, camry)
	req := ExtractRequirements(camry)
	assert.Empty(t, req.DashKit)
	assert.Equal(t, "70-1761", req.RadioHarness)
}

func TestLoadFileYAML(t *testing.T) {
	src, err := LoadFile("testdata/vehicles.yaml", quietLogger())
	require.NoError(t, err)
	require.Equal(t, 2, src.Len())

	rec, err := NewResolver(src, quietLogger()).FindFitment(context.Background(), 2015, "Jeep", "Wrangler")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "All", rec.Trim)

	req := ExtractRequirements(rec)
	locs, ok := req.LocationsFor("3.5")
	require.True(t, ok)
	assert.Equal(t, []string{"Front - Dash"}, locs)
	locs, ok = req.LocationsFor("6.5")
	require.True(t, ok)
	assert.Equal(t, []string{"Other - Sound Bar"}, locs)
	assert.Equal(t, []string{"72-6514"}, req.Harnesses)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader(`[]`), "toml", quietLogger())
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	_, err = Decode(strings.NewReader(`{"cars": []}`), "json", quietLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)

	_, err = LoadFile("testdata/missing.json", quietLogger())
	assert.Error(t, err)
}

func TestDecodeSkipsOutOfRangeYears(t *testing.T) {
	data := `[
		{"make": "Honda", "model": "Civic", "yearStart": 2018, "yearEnd": 100000000000000},
		{"make": "Honda", "model": "Accord", "yearStart": -5, "yearEnd": 2000},
		{"make": "Honda", "model": "Fit", "years": [2015, 99999]},
		{"make": "Toyota", "model": "Camry", "yearStart": 2012, "yearEnd": 2017}
	]`
	var recs []domain.FitmentRecord
	require.NotPanics(t, func() {
		var err error
		recs, err = Decode(strings.NewReader(data), "json", quietLogger())
		require.NoError(t, err)
	})
	require.Len(t, recs, 1)
	assert.Equal(t, "Camry", recs[0].Model)

	res := NewResolver(NewMemorySource(recs), quietLogger())
	rec, err := res.FindFitment(context.Background(), 1990, "Honda", "Accord")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMaestroLookup(t *testing.T) {
	ctx := context.Background()
	data := `{"maestro": [
		{"make": "Honda", "model": "Civic", "year": 2020, "Radio": "Display Audio", "Features": "SWC"},
		{"make": "Honda", "model": "Civic", "yearStart": 2016, "yearEnd": 2021, "radioType": "Base"},
		{"make": "Honda", "model": "", "year": 2020},
		{"make": "Ford", "model": "F-150", "year": 100000}
	]}`
	records, err := DecodeMaestro(strings.NewReader(data), "json", quietLogger())
	require.NoError(t, err)
	require.Len(t, records, 2)

	res := NewResolver(NewMemorySource(nil), quietLogger())
	m, err := res.Maestro(ctx, domain.Selector{Year: 2020, Make: "Honda", Model: "Civic"})
	require.NoError(t, err)
	assert.Nil(t, m, "no maestro table configured")

	res.WithMaestro(NewMaestroTable(records))
	m, err = res.Maestro(ctx, domain.Selector{Year: 2020, Make: " honda ", Model: "CIVIC"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Display Audio", m.RadioType)
	assert.Equal(t, "SWC", m.Retention)

	m, err = res.Maestro(ctx, domain.Selector{Year: 2017, Make: "Honda", Model: "Civic"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Base", m.RadioType)

	m, err = res.Maestro(ctx, domain.Selector{Make: "Honda", Model: "Civic"})
	require.NoError(t, err)
	assert.Nil(t, m)
}
