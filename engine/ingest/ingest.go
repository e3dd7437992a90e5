// Package ingest loads installation-guide spreadsheets and product lists into
// the fitment and catalog stores. Rows run through a small stage pipeline
// (parse, validate) and bad rows are reported by line number and skipped.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
	"github.com/WessleyAI/wessley-fitment/pkg/fn"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
)

// DefaultBatchSize is the number of records written per store call.
const DefaultBatchSize = 200

// FitmentSink stores fitment records. graph.FitmentStore implements it.
type FitmentSink interface {
	SaveBatch(ctx context.Context, records []domain.FitmentRecord) error
}

// CatalogSink stores products. catalog.SQLSource and semantic.CatalogStore
// implement it.
type CatalogSink interface {
	Name() string
	Upsert(ctx context.Context, products []domain.Product) (int, error)
}

// Importer runs import jobs.
type Importer struct {
	logger   *slog.Logger
	metrics  *metrics.Fitment
	batch    int
	progress io.Writer
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(im *Importer) { im.logger = l } }

// WithMetrics sets the instrument set.
func WithMetrics(m *metrics.Fitment) Option { return func(im *Importer) { im.metrics = m } }

// WithBatchSize sets how many records go into one store call.
func WithBatchSize(n int) Option { return func(im *Importer) { im.batch = n } }

// WithProgress draws a progress bar on w.
func WithProgress(w io.Writer) Option { return func(im *Importer) { im.progress = w } }

// New creates an Importer.
func New(opts ...Option) *Importer {
	im := &Importer{logger: slog.Default(), batch: DefaultBatchSize}
	for _, o := range opts {
		o(im)
	}
	if im.metrics == nil {
		im.metrics = metrics.NewFitment(nil)
	}
	if im.batch <= 0 {
		im.batch = DefaultBatchSize
	}
	return im
}

func (im *Importer) bar(total int, desc string) *progressbar.ProgressBar {
	if im.progress == nil {
		return progressbar.DefaultSilent(int64(total), desc)
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(im.progress),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(im.progress) }),
	)
}

// --- Pipeline Stages ---

// ParseRow maps a row of the given kind onto a fitment record.
func ParseRow(kind Kind) fn.Stage[Row, domain.FitmentRecord] {
	return func(_ context.Context, row Row) fn.Result[domain.FitmentRecord] {
		var (
			rec domain.FitmentRecord
			err error
		)
		switch kind {
		case KindRadio:
			rec, err = RadioRecord(row)
		case KindSpeakers:
			rec, err = SpeakerRecord(row)
		case KindMaestro:
			err = fmt.Errorf("%w: maestro rows are not fitment records", domain.ErrUnsupportedFormat)
		default:
			err = fmt.Errorf("%w: cannot tell radio from speaker columns", domain.ErrUnsupportedFormat)
		}
		if err != nil {
			return fn.Err[domain.FitmentRecord](err)
		}
		return fn.Ok(rec)
	}
}

// ValidateFitment rejects records the stores would refuse.
var ValidateFitment fn.Stage[domain.FitmentRecord, domain.FitmentRecord] = func(_ context.Context, rec domain.FitmentRecord) fn.Result[domain.FitmentRecord] {
	if err := domain.ValidateFitment(rec); err != nil {
		return fn.Err[domain.FitmentRecord](err)
	}
	return fn.Ok(rec)
}

// ParseProduct maps a row onto a product through the catalog aliases.
var ParseProduct fn.Stage[Row, domain.Product] = func(_ context.Context, row Row) fn.Result[domain.Product] {
	p := domain.CanonicalizeProduct(row.Doc())
	if err := domain.ValidateProduct(p); err != nil {
		return fn.Err[domain.Product](err)
	}
	return fn.Ok(p)
}

// NewFitmentPipeline composes parse and validate for one sheet kind.
func NewFitmentPipeline(kind Kind) fn.Stage[Row, domain.FitmentRecord] {
	return fn.TracedStage("ingest.row", fn.Then(ParseRow(kind), ValidateFitment))
}

// Fitment turns rows into merged fitment records. KindAuto detects the sheet
// from the first row's header.
func (im *Importer) Fitment(ctx context.Context, rows []Row, kind Kind) ([]domain.FitmentRecord, Report) {
	report := Report{Rows: len(rows)}
	if kind == KindAuto && len(rows) > 0 {
		kind = DetectKind(rows[0].Header)
	}
	pipeline := NewFitmentPipeline(kind)
	bar := im.bar(len(rows), "fitment "+kind.String())

	var records []domain.FitmentRecord
	for _, row := range rows {
		rec, err := pipeline(ctx, row).Unwrap()
		_ = bar.Add(1)
		if err != nil {
			im.metrics.ImportSkipped.Inc()
			report.skip(row.Num, err)
			im.logger.Debug("ingest: skipping row", "row", row.Num, "error", err)
			continue
		}
		records = append(records, rec)
	}
	_ = bar.Finish()

	merged := Merge(records)
	report.Records = len(merged)
	return merged, report
}

// Products turns rows into catalog products. Later duplicates of a product
// key replace earlier ones in place.
func (im *Importer) Products(ctx context.Context, rows []Row) ([]domain.Product, Report) {
	report := Report{Rows: len(rows)}
	bar := im.bar(len(rows), "catalog")
	stage := fn.TracedStage("ingest.product", ParseProduct)

	var products []domain.Product
	seen := make(map[string]int)
	for _, row := range rows {
		p, err := stage(ctx, row).Unwrap()
		_ = bar.Add(1)
		if err != nil {
			im.metrics.ImportSkipped.Inc()
			report.skip(row.Num, err)
			continue
		}
		if i, ok := seen[p.Key()]; ok {
			products[i] = p
			continue
		}
		seen[p.Key()] = len(products)
		products = append(products, p)
	}
	_ = bar.Finish()
	report.Records = len(products)
	return products, report
}

// Maestro turns Maestro sheet rows into radio-interface entries. Rows for
// the same make, model and years keep the last one seen.
func (im *Importer) Maestro(ctx context.Context, rows []Row) ([]domain.MaestroRecord, Report) {
	report := Report{Rows: len(rows)}
	bar := im.bar(len(rows), "maestro")
	stage := fn.TracedStage("ingest.maestro", func(_ context.Context, row Row) fn.Result[domain.MaestroRecord] {
		m, err := MaestroRow(row)
		return fn.FromPair(m, err)
	})

	var records []domain.MaestroRecord
	seen := make(map[string]int)
	for _, row := range rows {
		m, err := stage(ctx, row).Unwrap()
		_ = bar.Add(1)
		if err != nil {
			im.metrics.ImportSkipped.Inc()
			report.skip(row.Num, err)
			continue
		}
		key := fmt.Sprintf("%s|%s|%d|%d", normalize.Name(m.Make), normalize.Name(m.Model), m.YearStart, m.YearEnd)
		if i, ok := seen[key]; ok {
			records[i] = m
			continue
		}
		seen[key] = len(records)
		records = append(records, m)
	}
	_ = bar.Finish()
	report.Records = len(records)
	return records, report
}

// SaveFitment writes records in batches and returns how many were sent.
func (im *Importer) SaveFitment(ctx context.Context, sink FitmentSink, records []domain.FitmentRecord) (int, error) {
	written := 0
	for _, batch := range fn.Chunk(records, im.batch) {
		if err := sink.SaveBatch(ctx, batch); err != nil {
			return written, fmt.Errorf("ingest: save fitment: %w", err)
		}
		written += len(batch)
		im.metrics.ImportRows.Add(int64(len(batch)))
	}
	im.logger.Info("ingest: fitment saved", "records", written)
	return written, nil
}

// SaveProducts upserts products into every sink. A failing sink does not
// stop the others; the errors are joined.
func (im *Importer) SaveProducts(ctx context.Context, products []domain.Product, sinks ...CatalogSink) (int, error) {
	var (
		written int
		errs    []error
	)
	for _, sink := range sinks {
		n, err := im.upsert(ctx, sink, products)
		written += n
		if err != nil {
			im.metrics.SourceErrors(sink.Name()).Inc()
			errs = append(errs, err)
		}
	}
	return written, errors.Join(errs...)
}

func (im *Importer) upsert(ctx context.Context, sink CatalogSink, products []domain.Product) (int, error) {
	written := 0
	for _, batch := range fn.Chunk(products, im.batch) {
		n, err := sink.Upsert(ctx, batch)
		written += n
		if err != nil {
			return written, fmt.Errorf("ingest: upsert into %s: %w", sink.Name(), err)
		}
		im.metrics.ImportRows.Add(int64(n))
	}
	im.logger.Info("ingest: catalog saved", "sink", sink.Name(), "products", written)
	return written, nil
}

// WriteDataset writes records as a fitment dataset that fitment.LoadFile reads.
func WriteDataset(w io.Writer, records []domain.FitmentRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"vehicles": records}); err != nil {
		return fmt.Errorf("ingest: write dataset: %w", err)
	}
	return nil
}

// WriteMaestro writes entries as a dataset that fitment.LoadMaestroFile reads.
func WriteMaestro(w io.Writer, records []domain.MaestroRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"maestro": records}); err != nil {
		return fmt.Errorf("ingest: write maestro: %w", err)
	}
	return nil
}
