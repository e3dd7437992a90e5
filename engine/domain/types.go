// Package domain defines the fitment and catalog data model shared by the
// engine packages. It is also the canonicalization gate: raw documents from
// files, spreadsheets and remote stores pass through here before the
// resolver and matcher ever see them.
package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// NotRequired is the installation-guide sentinel for "no part needed".
const NotRequired = "N/R"

// Speaker zones as keyed in fitment documents.
const (
	ZoneFront = "front"
	ZoneRear  = "rear"
	ZoneOther = "other"
)

// Zones lists the known zones in extraction order.
var Zones = []string{ZoneFront, ZoneRear, ZoneOther}

// Selector is an explicit vehicle selection. It is passed through every call
// instead of living in shared UI state.
type Selector struct {
	Year  int    `json:"year"`
	Make  string `json:"make"`
	Model string `json:"model"`
}

// Complete reports whether year, make and model are all present.
func (s Selector) Complete() bool {
	return s.Year > 0 && strings.TrimSpace(s.Make) != "" && strings.TrimSpace(s.Model) != ""
}

func (s Selector) String() string {
	return strings.TrimSpace(fmt.Sprintf("%d %s %s", s.Year, s.Make, s.Model))
}

// RadioParts are the head-unit installation parts for a vehicle.
type RadioParts struct {
	DashKit        string `json:"dashKit,omitempty" yaml:"dashKit,omitempty"`
	Harness        string `json:"harness,omitempty" yaml:"harness,omitempty"`
	AntennaAdapter string `json:"antennaAdapter,omitempty" yaml:"antennaAdapter,omitempty"`
	AmpBypass      string `json:"ampBypass,omitempty" yaml:"ampBypass,omitempty"`
}

// SpeakerSlot is one physical speaker position.
type SpeakerSlot struct {
	Zone     string `json:"zone,omitempty" yaml:"zone,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Size     string `json:"size,omitempty" yaml:"size,omitempty"`
	Adapter  string `json:"adapter,omitempty" yaml:"adapter,omitempty"`
	Harness  string `json:"harness,omitempty" yaml:"harness,omitempty"`
}

// FitmentRecord is one vehicle-application entry of the fitment knowledge base.
type FitmentRecord struct {
	ID        string                   `json:"id,omitempty" yaml:"id,omitempty"`
	YearStart int                      `json:"yearStart" yaml:"yearStart"`
	YearEnd   int                      `json:"yearEnd" yaml:"yearEnd"`
	Years     []int                    `json:"years,omitempty" yaml:"years,omitempty"`
	Make      string                   `json:"make" yaml:"make"`
	Model     string                   `json:"model" yaml:"model"`
	Trim      string                   `json:"trim,omitempty" yaml:"trim,omitempty"`
	BodyStyle string                   `json:"bodyStyle,omitempty" yaml:"bodyStyle,omitempty"`
	Notes     string                   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Radio     *RadioParts              `json:"radio,omitempty" yaml:"radio,omitempty"`
	Speakers  map[string][]SpeakerSlot `json:"speakers,omitempty" yaml:"speakers,omitempty"`

	// Seq is the position of the record in its dataset.
	Seq int `json:"-" yaml:"-"`
}

// MaestroRecord is the iDatalink Maestro radio-replacement data for a
// vehicle: which factory radio it has and which features an interface keeps.
type MaestroRecord struct {
	Make      string `json:"make" yaml:"make"`
	Model     string `json:"model" yaml:"model"`
	YearStart int    `json:"yearStart" yaml:"yearStart"`
	YearEnd   int    `json:"yearEnd" yaml:"yearEnd"`
	RadioType string `json:"radioType,omitempty" yaml:"radioType,omitempty"`
	Retention string `json:"retention,omitempty" yaml:"retention,omitempty"`
	Notes     string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Covers reports whether the entry applies to year.
func (m MaestroRecord) Covers(year int) bool {
	return m.YearStart > 0 && year >= m.YearStart && year <= m.YearEnd
}

// Covers reports whether the record applies to year. An explicit Years list
// is authoritative when present; otherwise the inclusive range is used.
func (r FitmentRecord) Covers(year int) bool {
	if year <= 0 {
		return false
	}
	if len(r.Years) > 0 {
		return slices.Contains(r.Years, year)
	}
	return r.YearStart > 0 && year >= r.YearStart && year <= r.YearEnd
}

// YearList expands the record into the individual years it covers.
func (r FitmentRecord) YearList() []int {
	if len(r.Years) > 0 {
		return slices.Clone(r.Years)
	}
	if r.YearStart < MinModelYear || r.YearEnd < r.YearStart || r.YearEnd > MaxModelYear() {
		return nil
	}
	out := make([]int, 0, r.YearEnd-r.YearStart+1)
	for y := r.YearStart; y <= r.YearEnd; y++ {
		out = append(out, y)
	}
	return out
}

// Slots returns every speaker slot in zone order: front, rear, other, then
// any unknown zones sorted by key.
func (r FitmentRecord) Slots() []SpeakerSlot {
	var out []SpeakerSlot
	for _, z := range r.zoneKeys() {
		for _, s := range r.Speakers[z] {
			if s.Zone == "" {
				s.Zone = z
			}
			out = append(out, s)
		}
	}
	return out
}

func (r FitmentRecord) zoneKeys() []string {
	keys := make([]string, 0, len(r.Speakers))
	for _, z := range Zones {
		if _, ok := r.Speakers[z]; ok {
			keys = append(keys, z)
		}
	}
	var extra []string
	for z := range r.Speakers {
		if !slices.Contains(Zones, z) {
			extra = append(extra, z)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}

// Catalog category keys used by the product catalog.
const (
	CatalogSpeaker        = "speaker"
	CatalogSpeakerAdapter = "speaker_adapter"
	CatalogSpeakerHarness = "speaker_harness"
	CatalogDashKit        = "dash_kit"
	CatalogRadioHarness   = "radio_harness"
	CatalogAntennaAdapter = "antenna_adapter"
)

// Product is a sellable catalog part.
type Product struct {
	ID          string          `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	SKU         string          `json:"sku,omitempty" yaml:"sku,omitempty"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Category    string          `json:"category,omitempty" yaml:"category,omitempty"`
	Brand       string          `json:"brand,omitempty" yaml:"brand,omitempty"`
	SpeakerSize string          `json:"speakerSize,omitempty" yaml:"speakerSize,omitempty"`
	MetraCode   string          `json:"metraCode,omitempty" yaml:"metraCode,omitempty"`
	Source      string          `json:"source,omitempty" yaml:"-"`
}

// Key returns the identity used for deduplication: id, else sku, else name.
// An empty key means the product cannot be identified.
func (p Product) Key() string {
	for _, k := range []string{p.ID, p.SKU, p.Name} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

// Category is the fixed display taxonomy.
type Category string

const (
	CategorySpeakers   Category = "Speakers"
	CategorySubwoofers Category = "Subwoofers"
	CategoryAmplifiers Category = "Amplifiers"
	CategoryInstall    Category = "Install"
	CategoryOther      Category = "Other"
)

// All is the filter value meaning "no filter".
const All = "All"

// RecommendedProduct is a Product enriched for presentation.
type RecommendedProduct struct {
	Product
	CategoryNorm Category `json:"categoryNorm"`
	Locations    []string `json:"locations,omitempty"`
}

// SizeNeed is one required speaker size and the location tags needing it.
type SizeNeed struct {
	Size      string   `json:"size"`
	Locations []string `json:"locations"`
}

// Requirements is the set of parts a fitment record calls for. Empty
// strings mean "not required".
type Requirements struct {
	Sizes        []SizeNeed `json:"sizes,omitempty"`
	Adapters     []string   `json:"adapters,omitempty"`
	Harnesses    []string   `json:"harnesses,omitempty"`
	DashKit      string     `json:"dashKit,omitempty"`
	RadioHarness string     `json:"radioHarness,omitempty"`
	Antenna      string     `json:"antenna,omitempty"`
}

// LocationsFor returns the location tags for a normalized size.
func (r Requirements) LocationsFor(size string) ([]string, bool) {
	for _, s := range r.Sizes {
		if s.Size == size {
			return s.Locations, true
		}
	}
	return nil, false
}

// Empty reports whether nothing is required.
func (r Requirements) Empty() bool {
	return len(r.Sizes) == 0 && len(r.Adapters) == 0 && len(r.Harnesses) == 0 &&
		r.DashKit == "" && r.RadioHarness == "" && r.Antenna == ""
}
