package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func readRows(t *testing.T, name string) []Row {
	t.Helper()
	rows, err := ReadFile(filepath.Join("testdata", name), "")
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", name, err)
	}
	return rows
}

// mockFitmentSink records every batch it is handed.
type mockFitmentSink struct {
	batches [][]domain.FitmentRecord
	err     error
}

func (m *mockFitmentSink) SaveBatch(_ context.Context, records []domain.FitmentRecord) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	return nil
}

// mockCatalogSink fails its first fail calls, then stores products.
type mockCatalogSink struct {
	name string
	fail int

	mu    sync.Mutex
	calls int
	got   []domain.Product
}

func (m *mockCatalogSink) Name() string { return m.name }

func (m *mockCatalogSink) Upsert(_ context.Context, products []domain.Product) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.fail {
		return 0, errors.New("store offline")
	}
	m.got = append(m.got, products...)
	return len(products), nil
}

func (m *mockCatalogSink) stored() []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product(nil), m.got...)
}

func TestReadCSV(t *testing.T) {
	rows := readRows(t, "metra_radio.csv")
	if len(rows) != 4 {
		t.Fatalf("expected 4 non-blank rows, got %d", len(rows))
	}
	if rows[0].Num != 2 || rows[3].Num != 5 {
		t.Fatalf("row numbers should count the header: %d..%d", rows[0].Num, rows[3].Num)
	}
	if got := rows[0].Get("make"); got != "Honda" {
		t.Fatalf("Get(make) = %q", got)
	}
	if got := rows[1].Get("double din", "single  din"); got != "99-8225" {
		t.Fatalf("fallback column not used: %q", got)
	}
}

func TestReadCSV_BOMAndRagged(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("\ufeffMAKE,MODEL,Start Year\nHonda,Civic\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Get("MAKE") != "Honda" || rows[0].Get("Start Year") != "" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("empty sheet: %v", err)
	}
}

func TestReadFile_Unsupported(t *testing.T) {
	_, err := ReadFile(filepath.Join("testdata", "metra_radio.csv.txt"), "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	_, err = ReadFile(filepath.Join("..", "fitment", "testdata", "vehicles.json"), "")
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range [][]any{
		{"MAKE", "MODEL", "Start Year", "End Year", "Front - Location 1", "Front - Size 1"},
		{"Honda", "Civic", 2016, 2021, "Front Door", `6 1/2"`},
		{},
		{"Mazda", "3", 2014, nil, "Front Door", "6x9"},
	} {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Num != 4 {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if DetectKind(rows[0].Header) != KindSpeakers {
		t.Fatal("speaker sheet not detected")
	}

	records, report := New(WithLogger(quiet())).Fitment(context.Background(), rows, KindAuto)
	if report.Skipped != 0 || len(records) != 2 {
		t.Fatalf("unexpected import: %+v %+v", report, records)
	}
	if records[1].YearStart != 2014 || records[1].YearEnd != 2014 {
		t.Fatalf("end year should default to start: %+v", records[1])
	}

	if _, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "Nope"); err == nil {
		t.Fatal("expected error for missing sheet")
	}
}

func TestRadioRecord(t *testing.T) {
	rows := readRows(t, "metra_radio.csv")

	civic, err := RadioRecord(rows[0])
	if err != nil {
		t.Fatal(err)
	}
	if civic.YearStart != 2016 || civic.YearEnd != 2021 {
		t.Fatalf("years = %d-%d", civic.YearStart, civic.YearEnd)
	}
	want := domain.RadioParts{DashKit: "95-7810", Harness: "70-1729", AntennaAdapter: "40-HD11"}
	if civic.Radio == nil || *civic.Radio != want {
		t.Fatalf("radio = %+v", civic.Radio)
	}

	camry, err := RadioRecord(rows[1])
	if err != nil {
		t.Fatal(err)
	}
	if camry.YearEnd != 2012 || camry.Radio.DashKit != "99-8225" || camry.Radio.Harness != "70-1761" {
		t.Fatalf("camry = %+v %+v", camry, camry.Radio)
	}

	_, err = RadioRecord(rows[2])
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != colMake || !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("missing make: %v", err)
	}
	if _, err := RadioRecord(rows[3]); !errors.Is(err, domain.ErrInvalidRecord) {
		t.Fatalf("bad year: %v", err)
	}
}

func TestSpeakerRecord(t *testing.T) {
	rows := readRows(t, "metra_speakers.csv")
	rec, err := SpeakerRecord(rows[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.BodyStyle != "Sedan" || rec.Notes != "Factory sub in trunk" {
		t.Fatalf("body/notes = %q %q", rec.BodyStyle, rec.Notes)
	}
	front := rec.Speakers[domain.ZoneFront]
	if len(front) != 2 || front[0].Size != `6 1/2"` || front[1].Location != "Dash" {
		t.Fatalf("front = %+v", front)
	}
	if front[0].Harness != "72-7800" || front[0].Adapter != "82-3300" {
		t.Fatalf("row parts not copied to slot: %+v", front[0])
	}
	if rear := rec.Speakers[domain.ZoneRear]; len(rear) != 1 || rear[0].Size != "6x9" {
		t.Fatalf("rear = %+v", rear)
	}

	jeep, err := SpeakerRecord(rows[2])
	if err != nil {
		t.Fatal(err)
	}
	if jeep.Speakers != nil || jeep.YearEnd != 2018 {
		t.Fatalf("jeep = %+v", jeep)
	}
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		header []string
		want   Kind
	}{
		{[]string{"MAKE", "MODEL", "DOUBLE DIN"}, KindRadio},
		{[]string{"make", "model", "into radio"}, KindRadio},
		{[]string{"MAKE", "front  -  size 1"}, KindSpeakers},
		{[]string{"Make", "Model", "Year", "Radio", "Features", "Notes"}, KindMaestro},
		{[]string{"MAKE", "MODEL"}, KindAuto},
	}
	for _, tc := range cases {
		if got := DetectKind(tc.header); got != tc.want {
			t.Errorf("DetectKind(%v) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindAuto, "Radio": KindRadio, "sheet2": KindSpeakers, "Maestro": KindMaestro} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseKind("sheet3"); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestImporterFitment_ReportsRows(t *testing.T) {
	m := metrics.NewFitment(nil)
	im := New(WithLogger(quiet()), WithMetrics(m))

	records, report := im.Fitment(context.Background(), readRows(t, "metra_radio.csv"), KindAuto)
	if report.Rows != 4 || report.Records != 2 || report.Skipped != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Errors[0].Row != 4 || report.Errors[1].Row != 5 {
		t.Fatalf("row errors = %v", report.Errors)
	}
	if !strings.HasPrefix(report.Errors[0].Error(), "row 4:") {
		t.Fatalf("row error text = %q", report.Errors[0].Error())
	}
	if records[0].Make != "Honda" || records[1].Model != "Camry" {
		t.Fatalf("records out of order: %+v", records)
	}
	if m.ImportSkipped.Value() != 2 {
		t.Fatalf("skipped counter = %d", m.ImportSkipped.Value())
	}
}

func TestImporterFitment_UndetectableSheet(t *testing.T) {
	rows := []Row{{Num: 2, Header: []string{"MAKE", "MODEL", "Start Year"}, Values: []string{"Honda", "Civic", "2020"}}}
	_, report := New(WithLogger(quiet())).Fitment(context.Background(), rows, KindAuto)
	if report.Skipped != 1 || !errors.Is(report.Errors[0], domain.ErrUnsupportedFormat) {
		t.Fatalf("report = %+v", report)
	}
}

func TestMerge_RadioAndSpeakers(t *testing.T) {
	im := New(WithLogger(quiet()))
	ctx := context.Background()
	radio, _ := im.Fitment(ctx, readRows(t, "metra_radio.csv"), KindRadio)
	speakers, report := im.Fitment(ctx, readRows(t, "metra_speakers.csv"), KindSpeakers)
	if report.Records != 2 {
		t.Fatalf("speaker rows for one application should merge: %+v", report)
	}

	merged := Merge(append(radio, speakers...))
	if len(merged) != 3 {
		t.Fatalf("expected civic, camry, wrangler; got %d", len(merged))
	}
	civic := merged[0]
	if civic.Radio == nil || civic.Radio.DashKit != "95-7810" {
		t.Fatalf("radio lost in merge: %+v", civic.Radio)
	}
	if len(civic.Speakers[domain.ZoneFront]) != 2 || civic.BodyStyle != "Sedan" {
		t.Fatalf("speakers not merged: %+v", civic)
	}
	for i, r := range merged {
		if r.Seq != i {
			t.Fatalf("seq %d = %d", i, r.Seq)
		}
	}

	// The merged dataset resolves like a bundled one.
	var buf bytes.Buffer
	if err := WriteDataset(&buf, merged); err != nil {
		t.Fatal(err)
	}
	decoded, err := fitment.Decode(&buf, "json", quiet())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := fitment.NewResolver(fitment.NewMemorySource(decoded), quiet()).FindFitment(ctx, 2020, "honda", "civic")
	if err != nil || rec == nil {
		t.Fatalf("FindFitment: %v %v", rec, err)
	}
	req := fitment.ExtractRequirements(rec)
	if req.DashKit != "95-7810" || len(req.Adapters) != 1 || req.Adapters[0] != "82-3300" {
		t.Fatalf("requirements = %+v", req)
	}
}

func TestMerge_FillsRadioGaps(t *testing.T) {
	a := domain.FitmentRecord{Make: "Honda", Model: "Civic", YearStart: 2016, YearEnd: 2021, Radio: &domain.RadioParts{DashKit: "95-7810"}}
	b := domain.FitmentRecord{Make: "HONDA", Model: "civic", YearStart: 2016, YearEnd: 2021, Radio: &domain.RadioParts{DashKit: "99-0000", Harness: "70-1729"}}
	c := domain.FitmentRecord{Make: "Honda", Model: "Civic", YearStart: 2016, YearEnd: 2021, Trim: "Si"}

	merged := Merge([]domain.FitmentRecord{a, b, c})
	if len(merged) != 2 {
		t.Fatalf("trim should split applications: %d", len(merged))
	}
	if got := *merged[0].Radio; got.DashKit != "95-7810" || got.Harness != "70-1729" {
		t.Fatalf("radio = %+v", got)
	}
	if a.Radio.Harness != "" {
		t.Fatal("merge must not write through to its input")
	}
}

func TestImporterProducts(t *testing.T) {
	products, report := New(WithLogger(quiet())).Products(context.Background(), readRows(t, "products.csv"))
	if report.Records != 3 || report.Skipped != 1 || report.Errors[0].Row != 4 {
		t.Fatalf("report = %+v", report)
	}
	if products[0].Name != "Pioneer TS-A652F (new)" || products[0].Price.String() != "79.99" {
		t.Fatalf("later duplicate should replace: %+v", products[0])
	}
	if products[2].Name != "Unbranded Tweeter" || !products[2].Price.IsZero() {
		t.Fatalf("bad price should be zero: %+v", products[2])
	}
}

func TestSaveFitment_Batches(t *testing.T) {
	m := metrics.NewFitment(nil)
	im := New(WithLogger(quiet()), WithMetrics(m), WithBatchSize(2))
	records := make([]domain.FitmentRecord, 5)

	sink := &mockFitmentSink{}
	n, err := im.SaveFitment(context.Background(), sink, records)
	if err != nil || n != 5 {
		t.Fatalf("SaveFitment = %d, %v", n, err)
	}
	if len(sink.batches) != 3 || len(sink.batches[2]) != 1 {
		t.Fatalf("batches = %d", len(sink.batches))
	}
	if m.ImportRows.Value() != 5 {
		t.Fatalf("rows counter = %d", m.ImportRows.Value())
	}

	_, err = im.SaveFitment(context.Background(), &mockFitmentSink{err: errors.New("neo4j down")}, records)
	if err == nil || !strings.Contains(err.Error(), "neo4j down") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestSaveProducts_SinkIsolation(t *testing.T) {
	m := metrics.NewFitment(nil)
	im := New(WithLogger(quiet()), WithMetrics(m))
	good := &mockCatalogSink{name: "sql:sqlite3"}
	bad := &mockCatalogSink{name: "qdrant:catalog", fail: 99}
	products := []domain.Product{{ID: "a"}, {ID: "b"}}

	n, err := im.SaveProducts(context.Background(), products, bad, good)
	if err == nil || !strings.Contains(err.Error(), "qdrant:catalog") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if n != 2 || len(good.stored()) != 2 {
		t.Fatalf("healthy sink should still be written: n=%d", n)
	}
	if m.SourceErrors("qdrant:catalog").Value() != 1 {
		t.Fatal("sink failure not counted")
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	New(WithLogger(quiet()), WithProgress(&buf)).Fitment(context.Background(), readRows(t, "metra_radio.csv"), KindRadio)
	if buf.Len() == 0 {
		t.Fatal("expected progress output")
	}
}

func TestImporterMaestro(t *testing.T) {
	ctx := context.Background()
	im := New(WithLogger(quiet()))

	records, report := im.Maestro(ctx, readRows(t, "maestro.csv"))
	if report.Rows != 3 || report.Records != 2 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Errors[0].Row != 4 || !errors.Is(report.Errors[0], domain.ErrMissingField) {
		t.Fatalf("row errors = %v", report.Errors)
	}
	civic := records[0]
	if civic.YearStart != 2020 || civic.YearEnd != 2020 || civic.RadioType != "Display Audio" ||
		civic.Retention != "Steering wheel controls, backup camera" {
		t.Fatalf("civic = %+v", civic)
	}

	// Fitment imports refuse Maestro rows instead of guessing.
	if _, rep := im.Fitment(ctx, readRows(t, "maestro.csv"), KindAuto); rep.Records != 0 || rep.Skipped != 3 {
		t.Fatalf("fitment import of maestro rows = %+v", rep)
	}

	var buf bytes.Buffer
	if err := WriteMaestro(&buf, records); err != nil {
		t.Fatal(err)
	}
	decoded, err := fitment.DecodeMaestro(&buf, "json", quiet())
	if err != nil {
		t.Fatal(err)
	}
	res := fitment.NewResolver(fitment.NewMemorySource(nil), quiet()).WithMaestro(fitment.NewMaestroTable(decoded))
	m, err := res.Maestro(ctx, domain.Selector{Year: 2021, Make: "HONDA", Model: "civic"})
	if err != nil || m == nil {
		t.Fatalf("Maestro: %v %v", m, err)
	}
	if m.Notes != "Gauge display needs firmware 3.2" {
		t.Fatalf("maestro = %+v", m)
	}
	if m, _ := res.Maestro(ctx, domain.Selector{Year: 2019, Make: "Honda", Model: "Civic"}); m != nil {
		t.Fatalf("2019 should have no entry, got %+v", m)
	}
}
