package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// ReadFile reads rows from a .csv or .xlsx file. sheet names the XLSX sheet;
// empty means the first one.
func ReadFile(path, sheet string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	var rows []Row
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = ReadCSV(f)
	case ".xlsx", ".xlsm":
		rows, err = ReadXLSX(f, sheet)
	default:
		return nil, fmt.Errorf("ingest: %s: %w", path, domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}
	return rows, nil
}

// ReadCSV reads a CSV sheet whose first line is the header. Rows may be
// ragged and blank rows are dropped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty sheet", domain.ErrInvalidRecord)
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows []Row
	for num := 2; ; num++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", num, err)
		}
		row := Row{Num: num, Header: header, Values: record}
		if !row.empty() {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadXLSX reads one worksheet whose first row is the header.
func ReadXLSX(r io.Reader, sheet string) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", domain.ErrInvalidRecord)
		}
		sheet = sheets[0]
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", domain.ErrInvalidRecord, sheet)
	}

	header := cells[0]
	rows := make([]Row, 0, len(cells)-1)
	for i, values := range cells[1:] {
		row := Row{Num: i + 2, Header: header, Values: values}
		if !row.empty() {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
