package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Doc is a raw document as decoded from JSON, YAML or a remote store.
type Doc = map[string]any

// Field aliases seen across fitment and catalog documents. The first key
// is the canonical name.
var (
	yearStartKeys = []string{"yearStart", "year_start", "startYear", "start_year", "Start Year"}
	yearEndKeys   = []string{"yearEnd", "year_end", "endYear", "end_year", "End Year"}
	trimKeys      = []string{"trim", "Trim", "TRIM/QUALIFIER", "qualifier"}
	bodyKeys      = []string{"bodyStyle", "body", "body_style", "BODY STYLE"}
	dashKitKeys   = []string{"dashKit", "dash_kit", "dashkit"}
	antennaKeys   = []string{"antennaAdapter", "antenna_adapter", "antenna"}
	ampBypassKeys = []string{"ampBypass", "amp_bypass"}
	sizeKeys      = []string{"speakerSize", "speaker_size", "size"}
	codeKeys      = []string{"metraCode", "metra_code", "code", "partNumber"}
	radioTypeKeys = []string{"radioType", "radio_type", "Radio"}
	retentionKeys = []string{"retention", "Features", "features"}
)

// DocList unwraps a decoded payload into documents. A top-level object is
// unwrapped through key when present.
func DocList(raw any, key string) ([]Doc, error) {
	if m, ok := raw.(map[string]any); ok {
		inner, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("%w: object without %q list", ErrInvalidRecord, key)
		}
		raw = inner
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of records", ErrInvalidRecord)
	}
	docs := make([]Doc, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			docs = append(docs, m)
		}
	}
	return docs, nil
}

// CanonicalizeFitment maps a raw fitment document onto FitmentRecord.
// Missing yearEnd defaults to yearStart and a reversed range is swapped.
// It never fails: unusable fields are left empty for ValidateFitment to
// reject.
func CanonicalizeFitment(doc Doc, seq int) FitmentRecord {
	r := FitmentRecord{
		ID:        str(doc, "id", "_id"),
		Make:      str(doc, "make", "Make"),
		Model:     str(doc, "model", "Model"),
		Trim:      str(doc, trimKeys...),
		BodyStyle: str(doc, bodyKeys...),
		Notes:     str(doc, "notes", "Notes"),
		Seq:       seq,
	}
	r.YearStart, _ = intOf(first(doc, yearStartKeys...))
	r.YearEnd, _ = intOf(first(doc, yearEndKeys...))
	r.Years = yearsOf(first(doc, "years"))
	if r.YearStart == 0 {
		if y, ok := intOf(first(doc, "year", "Year")); ok {
			r.YearStart = y
		}
	}
	if r.YearStart == 0 && len(r.Years) > 0 {
		r.YearStart, r.YearEnd = minMax(r.Years)
	}
	if r.YearEnd == 0 {
		r.YearEnd = r.YearStart
	}
	if r.YearEnd < r.YearStart {
		r.YearStart, r.YearEnd = r.YearEnd, r.YearStart
	}

	if radio, ok := first(doc, "radio").(map[string]any); ok {
		rp := RadioParts{
			DashKit:        str(radio, dashKitKeys...),
			Harness:        str(radio, "harness"),
			AntennaAdapter: str(radio, antennaKeys...),
			AmpBypass:      str(radio, ampBypassKeys...),
		}
		if rp != (RadioParts{}) {
			r.Radio = &rp
		}
	}

	if speakers, ok := first(doc, "speakers").(map[string]any); ok {
		r.Speakers = make(map[string][]SpeakerSlot, len(speakers))
		for zone, raw := range speakers {
			key := strings.ToLower(strings.TrimSpace(zone))
			for _, item := range listOf(raw) {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				r.Speakers[key] = append(r.Speakers[key], SpeakerSlot{
					Zone:     str(m, "zone"),
					Location: str(m, "location", "Location"),
					Size:     str(m, sizeKeys...),
					Adapter:  str(m, "adapter"),
					Harness:  str(m, "harness"),
				})
			}
		}
	}
	return r
}

// CanonicalizeMaestro maps a raw Maestro document or sheet row. A single
// "year" fills both ends of the range.
func CanonicalizeMaestro(doc Doc) MaestroRecord {
	m := MaestroRecord{
		Make:      str(doc, "make", "Make"),
		Model:     str(doc, "model", "Model"),
		RadioType: str(doc, radioTypeKeys...),
		Retention: str(doc, retentionKeys...),
		Notes:     str(doc, "notes", "Notes"),
	}
	m.YearStart, _ = intOf(first(doc, yearStartKeys...))
	m.YearEnd, _ = intOf(first(doc, yearEndKeys...))
	if m.YearStart == 0 {
		m.YearStart, _ = intOf(first(doc, "year", "Year"))
	}
	if m.YearEnd == 0 {
		m.YearEnd = m.YearStart
	}
	if m.YearEnd < m.YearStart {
		m.YearStart, m.YearEnd = m.YearEnd, m.YearStart
	}
	return m
}

// CanonicalizeProduct maps a raw catalog document onto Product. Missing or
// unparseable prices become zero.
func CanonicalizeProduct(doc Doc) Product {
	return Product{
		ID:          str(doc, "id", "_id"),
		Name:        str(doc, "name", "Name"),
		SKU:         str(doc, "sku", "SKU"),
		Price:       PriceOf(first(doc, "price", "Price")),
		Category:    str(doc, "category", "Category"),
		Brand:       str(doc, "brand", "Brand"),
		SpeakerSize: str(doc, sizeKeys...),
		MetraCode:   str(doc, codeKeys...),
	}
}

// PriceOf converts a raw price to a non-negative decimal. Strings may carry a
// currency symbol and thousands separators.
func PriceOf(v any) decimal.Decimal {
	var d decimal.Decimal
	switch tv := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		d = tv
	case float64:
		d = decimal.NewFromFloat(tv)
	case float32:
		d = decimal.NewFromFloat32(tv)
	case int:
		d = decimal.NewFromInt(int64(tv))
	case int64:
		d = decimal.NewFromInt(tv)
	case json.Number:
		parsed, err := decimal.NewFromString(tv.String())
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	case string:
		s := strings.NewReplacer("$", "", ",", "", " ", "").Replace(tv)
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func first(doc Doc, keys ...string) any {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func str(doc Doc, keys ...string) string {
	switch v := first(doc, keys...).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intOf(v any) (int, bool) {
	switch tv := v.(type) {
	case int:
		return tv, true
	case int64:
		return int(tv), true
	case float64:
		return int(tv), true
	case json.Number:
		n, err := tv.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(tv))
		return n, err == nil
	}
	return 0, false
}

// yearsOf accepts a list of years or a "2018, 2019, 2021" string.
func yearsOf(v any) []int {
	var out []int
	switch tv := v.(type) {
	case []any:
		for _, item := range tv {
			if y, ok := intOf(item); ok && y > 0 {
				out = append(out, y)
			}
		}
	case []int:
		out = append(out, tv...)
	case string:
		for _, part := range strings.FieldsFunc(tv, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
			if y, err := strconv.Atoi(part); err == nil && y > 0 {
				out = append(out, y)
			}
		}
	}
	return out
}

func listOf(v any) []any {
	switch tv := v.(type) {
	case []any:
		return tv
	case []map[string]any:
		out := make([]any, len(tv))
		for i, m := range tv {
			out[i] = m
		}
		return out
	case map[string]any:
		return []any{tv}
	}
	return nil
}

func minMax(ys []int) (int, int) {
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	return lo, hi
}
