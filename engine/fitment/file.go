package fitment

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// LoadFile reads a JSON or YAML fitment dataset into a MemorySource.
// Records that fail validation are logged and skipped.
func LoadFile(path string, log *slog.Logger) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fitment: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Decode(f, domain.FormatOf(path), log)
	if err != nil {
		return nil, fmt.Errorf("fitment: load %s: %w", path, err)
	}
	return NewMemorySource(records), nil
}

// Decode reads and canonicalizes fitment documents. The payload is either a
// list of records or an object holding one under "vehicles".
func Decode(r io.Reader, format string, log *slog.Logger) ([]domain.FitmentRecord, error) {
	if log == nil {
		log = slog.Default()
	}
	docs, err := domain.DecodeDocs(r, format, "vehicles")
	if err != nil {
		return nil, err
	}

	records := make([]domain.FitmentRecord, 0, len(docs))
	for i, doc := range docs {
		rec := domain.CanonicalizeFitment(doc, i)
		if err := domain.ValidateFitment(rec); err != nil {
			log.Warn("fitment: skipping malformed record", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
