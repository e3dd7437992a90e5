package fitment

import (
	"slices"
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// defaultZone labels slots that carry no zone.
const defaultZone = "Front"

// ExtractRequirements derives the parts a fitment record calls for. Sizes
// are normalized; adapter and harness codes keep their trimmed raw form.
// "N/R" means not required for the dash kit and antenna adapter only.
func ExtractRequirements(rec *domain.FitmentRecord) domain.Requirements {
	var req domain.Requirements
	if rec == nil {
		return req
	}

	for _, slot := range rec.Slots() {
		if size := normalize.Size(slot.Size); size != "" {
			req.Sizes = addLocation(req.Sizes, size, LocationTag(slot))
		}
		if a := strings.TrimSpace(slot.Adapter); a != "" && !slices.Contains(req.Adapters, a) {
			req.Adapters = append(req.Adapters, a)
		}
		if h := strings.TrimSpace(slot.Harness); h != "" && !slices.Contains(req.Harnesses, h) {
			req.Harnesses = append(req.Harnesses, h)
		}
	}

	if rec.Radio != nil {
		req.DashKit = required(rec.Radio.DashKit)
		req.RadioHarness = strings.TrimSpace(rec.Radio.Harness)
		req.Antenna = required(rec.Radio.AntennaAdapter)
	}
	return req
}

// LocationTag renders a slot as "<Zone> - <Location>", or just the zone when
// the slot has no location. A missing zone reads as "Front".
func LocationTag(slot domain.SpeakerSlot) string {
	zone := defaultZone
	if z := strings.TrimSpace(slot.Zone); z != "" {
		zone = normalize.Zone(z)
	}
	if loc := strings.TrimSpace(slot.Location); loc != "" {
		return zone + " - " + loc
	}
	return zone
}

func required(code string) string {
	code = strings.TrimSpace(code)
	if code == domain.NotRequired {
		return ""
	}
	return code
}

func addLocation(needs []domain.SizeNeed, size, tag string) []domain.SizeNeed {
	for i := range needs {
		if needs[i].Size == size {
			if !slices.Contains(needs[i].Locations, tag) {
				needs[i].Locations = append(needs[i].Locations, tag)
			}
			return needs
		}
	}
	return append(needs, domain.SizeNeed{Size: size, Locations: []string{tag}})
}
