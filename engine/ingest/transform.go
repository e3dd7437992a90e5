package ingest

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// Metra application-guide column headers.
const (
	colMake      = "MAKE"
	colModel     = "MODEL"
	colTrim      = "TRIM/QUALIFIER"
	colBody      = "BODY STYLE"
	colStartYear = "Start Year"
	colEndYear   = "End Year"
	colOther     = "OTHER"

	colDoubleDIN  = "DOUBLE DIN"
	colSingleDIN  = "SINGLE DIN"
	colIntoCar    = "INTO CAR"
	colIntoRadio  = "INTO RADIO"
	colAmpIntoCar = "AMP INTO CAR"
	colAntenna    = "ANTENNA ADAPTER"

	colSpeakerHarness = "Speaker harness"
	colSpeakerAdapter = "Speaker adapter"

	colMaestroRadio    = "Radio"
	colMaestroFeatures = "Features"
)

// slotsPerZone is how many "<Zone> - Location N" columns the speaker sheet has.
const slotsPerZone = 3

// DetectKind looks at a header to tell the radio, speaker and Maestro sheets
// apart.
func DetectKind(header []string) Kind {
	row := Row{Header: header}
	if row.has(speakerCol(domain.ZoneFront, "Location", 1)) || row.has(speakerCol(domain.ZoneFront, "Size", 1)) {
		return KindSpeakers
	}
	for _, col := range []string{colDoubleDIN, colSingleDIN, colIntoCar, colIntoRadio, colAntenna} {
		if row.has(col) {
			return KindRadio
		}
	}
	if row.has(colMaestroRadio) && row.has(colMaestroFeatures) {
		return KindMaestro
	}
	return KindAuto
}

func (r Row) has(header string) bool {
	want := headerKey(header)
	for _, col := range r.Header {
		if headerKey(col) == want {
			return true
		}
	}
	return false
}

func speakerCol(zone, field string, n int) string {
	return fmt.Sprintf("%s - %s %d", normalize.Zone(zone), field, n)
}

// vehicle reads the columns both sheets share.
func vehicle(row Row) (domain.FitmentRecord, error) {
	rec := domain.FitmentRecord{
		Make:  row.Get(colMake, "Make"),
		Model: row.Get(colModel, "Model"),
		Trim:  row.Get(colTrim),
		Seq:   row.Num,
	}
	if rec.Make == "" {
		return rec, domain.NewValidationError(colMake, "", domain.ErrMissingField)
	}
	if rec.Model == "" {
		return rec, domain.NewValidationError(colModel, "", domain.ErrMissingField)
	}

	raw := row.Get(colStartYear, "Year")
	if raw == "" {
		return rec, domain.NewValidationError(colStartYear, "", domain.ErrMissingField)
	}
	start, ok := year(raw)
	if !ok {
		return rec, domain.NewValidationError(colStartYear, raw, domain.ErrInvalidRecord)
	}
	end := start
	if raw := row.Get(colEndYear); raw != "" {
		if end, ok = year(raw); !ok {
			return rec, domain.NewValidationError(colEndYear, raw, domain.ErrInvalidRecord)
		}
	}
	if end < start {
		start, end = end, start
	}
	rec.YearStart, rec.YearEnd = start, end
	return rec, nil
}

// year accepts "2018" and the "2018.0" some spreadsheet exports produce.
func year(s string) (int, bool) {
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// RadioRecord maps a radio-sheet row. The dash kit prefers the double-DIN
// kit, the harness prefers the into-car side.
func RadioRecord(row Row) (domain.FitmentRecord, error) {
	rec, err := vehicle(row)
	if err != nil {
		return rec, err
	}
	radio := domain.RadioParts{
		DashKit:        row.Get(colDoubleDIN, colSingleDIN),
		Harness:        row.Get(colIntoCar, colIntoRadio, colAmpIntoCar),
		AntennaAdapter: row.Get(colAntenna),
	}
	if radio != (domain.RadioParts{}) {
		rec.Radio = &radio
	}
	return rec, nil
}

// MaestroRow maps a Maestro sheet row. A single Year column fills both
// ends of the range.
func MaestroRow(row Row) (domain.MaestroRecord, error) {
	m := domain.MaestroRecord{
		Make:      row.Get(colMake),
		Model:     row.Get(colModel),
		RadioType: row.Get(colMaestroRadio),
		Retention: row.Get(colMaestroFeatures),
		Notes:     row.Get("Notes"),
	}
	raw := row.Get("Year", colStartYear)
	if raw == "" {
		return m, domain.NewValidationError("Year", "", domain.ErrMissingField)
	}
	start, ok := year(raw)
	if !ok {
		return m, domain.NewValidationError("Year", raw, domain.ErrInvalidRecord)
	}
	m.YearStart, m.YearEnd = start, start
	if raw := row.Get(colEndYear); raw != "" {
		end, ok := year(raw)
		if !ok {
			return m, domain.NewValidationError(colEndYear, raw, domain.ErrInvalidRecord)
		}
		m.YearStart, m.YearEnd = min(start, end), max(start, end)
	}
	return m, domain.ValidateMaestro(m)
}

// SpeakerRecord maps a speaker-sheet row. Every slot of the row shares the
// row's speaker harness and adapter.
func SpeakerRecord(row Row) (domain.FitmentRecord, error) {
	rec, err := vehicle(row)
	if err != nil {
		return rec, err
	}
	rec.BodyStyle = row.Get(colBody)
	if other := row.Get(colOther); strings.Contains(strings.ToLower(other), "sub") {
		rec.Notes = other
	}

	harness, adapter := row.Get(colSpeakerHarness), row.Get(colSpeakerAdapter)
	for _, zone := range []string{domain.ZoneFront, domain.ZoneRear} {
		for n := 1; n <= slotsPerZone; n++ {
			loc := row.Get(speakerCol(zone, "Location", n))
			size := row.Get(speakerCol(zone, "Size", n))
			if loc == "" && size == "" {
				continue
			}
			if rec.Speakers == nil {
				rec.Speakers = make(map[string][]domain.SpeakerSlot)
			}
			rec.Speakers[zone] = append(rec.Speakers[zone], domain.SpeakerSlot{
				Location: loc,
				Size:     size,
				Harness:  harness,
				Adapter:  adapter,
			})
		}
	}
	return rec, nil
}

// Merge folds records describing the same vehicle application (make, model,
// year range and trim) into one, so radio and speaker rows end up together.
// Output keeps first-seen order.
func Merge(records []domain.FitmentRecord) []domain.FitmentRecord {
	var out []domain.FitmentRecord
	index := make(map[string]int)
	for _, r := range records {
		k := mergeKey(r)
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			r.Seq = len(out)
			out = append(out, r)
			continue
		}
		out[i] = mergeInto(out[i], r)
	}
	return out
}

func mergeKey(r domain.FitmentRecord) string {
	return strings.Join([]string{
		normalize.Name(r.Make), normalize.Name(r.Model),
		strconv.Itoa(r.YearStart), strconv.Itoa(r.YearEnd),
		normalize.Name(r.Trim),
	}, "|")
}

func mergeInto(dst, src domain.FitmentRecord) domain.FitmentRecord {
	if dst.BodyStyle == "" {
		dst.BodyStyle = src.BodyStyle
	}
	if src.Notes != "" && !strings.Contains(dst.Notes, src.Notes) {
		dst.Notes = strings.TrimPrefix(dst.Notes+"; "+src.Notes, "; ")
	}
	if src.Radio != nil {
		if dst.Radio == nil {
			radio := *src.Radio
			dst.Radio = &radio
		} else {
			radio := *dst.Radio
			radio.DashKit = cmp.Or(radio.DashKit, src.Radio.DashKit)
			radio.Harness = cmp.Or(radio.Harness, src.Radio.Harness)
			radio.AntennaAdapter = cmp.Or(radio.AntennaAdapter, src.Radio.AntennaAdapter)
			radio.AmpBypass = cmp.Or(radio.AmpBypass, src.Radio.AmpBypass)
			dst.Radio = &radio
		}
	}
	if len(src.Speakers) > 0 {
		speakers := make(map[string][]domain.SpeakerSlot, len(dst.Speakers)+len(src.Speakers))
		for zone, slots := range dst.Speakers {
			speakers[zone] = slices.Clone(slots)
		}
		for zone, slots := range src.Speakers {
			for _, s := range slots {
				if !hasSlot(speakers[zone], s) {
					speakers[zone] = append(speakers[zone], s)
				}
			}
		}
		dst.Speakers = speakers
	}
	return dst
}

func hasSlot(slots []domain.SpeakerSlot, s domain.SpeakerSlot) bool {
	for _, have := range slots {
		if normalize.EqualName(have.Location, s.Location) && normalize.Size(have.Size) == normalize.Size(s.Size) {
			return true
		}
	}
	return false
}
