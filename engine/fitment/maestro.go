package fitment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// MaestroSource looks up radio-interface data for one vehicle year.
type MaestroSource interface {
	QueryMaestro(ctx context.Context, sel domain.Selector) (*domain.MaestroRecord, error)
}

// MaestroTable serves Maestro entries from memory.
type MaestroTable struct {
	records []domain.MaestroRecord
}

// Compile-time interface check.
var _ MaestroSource = (*MaestroTable)(nil)

// NewMaestroTable creates a MaestroTable. The first matching entry wins.
func NewMaestroTable(records []domain.MaestroRecord) *MaestroTable {
	return &MaestroTable{records: records}
}

// QueryMaestro returns the first entry for sel, or nil.
func (t *MaestroTable) QueryMaestro(_ context.Context, sel domain.Selector) (*domain.MaestroRecord, error) {
	for i, m := range t.records {
		if m.Covers(sel.Year) && normalize.EqualName(m.Make, sel.Make) && normalize.EqualName(m.Model, sel.Model) {
			return &t.records[i], nil
		}
	}
	return nil, nil
}

// Len returns the number of entries held.
func (t *MaestroTable) Len() int { return len(t.records) }

// LoadMaestroFile reads a JSON or YAML Maestro dataset.
func LoadMaestroFile(path string, log *slog.Logger) (*MaestroTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fitment: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := DecodeMaestro(f, domain.FormatOf(path), log)
	if err != nil {
		return nil, fmt.Errorf("fitment: load %s: %w", path, err)
	}
	return NewMaestroTable(records), nil
}

// DecodeMaestro reads a list of Maestro entries, bare or under "maestro".
func DecodeMaestro(r io.Reader, format string, log *slog.Logger) ([]domain.MaestroRecord, error) {
	if log == nil {
		log = slog.Default()
	}
	docs, err := domain.DecodeDocs(r, format, "maestro")
	if err != nil {
		return nil, err
	}
	records := make([]domain.MaestroRecord, 0, len(docs))
	for i, doc := range docs {
		m := domain.CanonicalizeMaestro(doc)
		if err := domain.ValidateMaestro(m); err != nil {
			log.Warn("fitment: skipping malformed maestro entry", "index", i, "error", err)
			continue
		}
		records = append(records, m)
	}
	return records, nil
}
