package ingest

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// Kind selects how spreadsheet rows are read.
type Kind int

const (
	// KindAuto picks radio or speaker rows from the header.
	KindAuto Kind = iota
	// KindRadio is the Metra radio sheet: dash kits, harnesses, antenna adapters.
	KindRadio
	// KindSpeakers is the Metra speaker sheet: locations, sizes, speaker parts.
	KindSpeakers
	// KindMaestro is the Maestro radio-interface sheet: factory radio and
	// retained features per vehicle year.
	KindMaestro
)

func (k Kind) String() string {
	switch k {
	case KindRadio:
		return "radio"
	case KindSpeakers:
		return "speakers"
	case KindMaestro:
		return "maestro"
	}
	return "auto"
}

// ParseKind maps a flag value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "radio", "sheet1":
		return KindRadio, nil
	case "speakers", "speaker", "sheet2":
		return KindSpeakers, nil
	case "maestro":
		return KindMaestro, nil
	}
	return KindAuto, fmt.Errorf("%w: sheet kind %q", domain.ErrUnsupportedFormat, s)
}

// Row is one spreadsheet data row. Num is the 1-based line in the sheet,
// header included, so it matches what a spreadsheet shows.
type Row struct {
	Num    int
	Header []string
	Values []string
}

// Get returns the first non-empty cell under any of the given headers.
// Headers compare case-insensitively with runs of spaces collapsed.
func (r Row) Get(headers ...string) string {
	for _, h := range headers {
		want := headerKey(h)
		for i, col := range r.Header {
			if headerKey(col) != want || i >= len(r.Values) {
				continue
			}
			if v := strings.TrimSpace(r.Values[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// Doc maps the row onto a raw document keyed by the original headers.
func (r Row) Doc() domain.Doc {
	doc := make(domain.Doc, len(r.Header))
	for i, col := range r.Header {
		if i < len(r.Values) {
			doc[strings.TrimSpace(col)] = r.Values[i]
		}
	}
	return doc
}

func (r Row) empty() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func headerKey(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}

// RowError reports a row that could not be imported.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// Report summarizes one import run.
type Report struct {
	Rows    int        `json:"rows"`
	Records int        `json:"records"`
	Written int        `json:"written"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"-"`
}

func (r *Report) skip(row int, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, RowError{Row: row, Err: err})
}
