// Package graph stores the fitment knowledge base as a Neo4j graph:
// (:Make)-[:HAS_MODEL]->(:VehicleModel)-[:HAS_FITMENT]->(:Fitment)-[:HAS_SPEAKER]->(:SpeakerSlot).
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// MakeStats summarizes one make in the graph.
type MakeStats struct {
	Name     string `json:"name"`
	Models   int64  `json:"models"`
	Fitments int64  `json:"fitments"`
}

// makeID and modelID are the node keys for a make and a model.
func makeID(makeName string) string {
	return slug(normalize.Name(makeName))
}

func modelID(makeName, model string) string {
	return fmt.Sprintf("%s-%s", makeID(makeName), slug(normalize.Name(model)))
}

func slug(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}

// fitmentProps flattens a record into Fitment node properties.
func fitmentProps(r domain.FitmentRecord) map[string]any {
	years := make([]int64, 0, len(r.Years))
	for _, y := range r.Years {
		years = append(years, int64(y))
	}
	props := map[string]any{
		"year_start": int64(r.YearStart),
		"year_end":   int64(r.YearEnd),
		"years":      years,
		"trim":       r.Trim,
		"body_style": r.BodyStyle,
		"notes":      r.Notes,
		"seq":        int64(r.Seq),
	}
	if r.Radio != nil {
		props["dash_kit"] = r.Radio.DashKit
		props["radio_harness"] = r.Radio.Harness
		props["antenna_adapter"] = r.Radio.AntennaAdapter
		props["amp_bypass"] = r.Radio.AmpBypass
	}
	return props
}

// slotParams lists slots for the UNWIND in saveFitment.
func slotParams(r domain.FitmentRecord) []map[string]any {
	var out []map[string]any
	for _, zone := range sortedZones(r) {
		for i, s := range r.Speakers[zone] {
			out = append(out, map[string]any{
				"zone":     zone,
				"position": int64(i),
				"location": s.Location,
				"size":     s.Size,
				"adapter":  s.Adapter,
				"harness":  s.Harness,
			})
		}
	}
	return out
}

func sortedZones(r domain.FitmentRecord) []string {
	seen := map[string]bool{}
	var zones []string
	for _, s := range r.Slots() {
		if !seen[s.Zone] {
			seen[s.Zone] = true
			zones = append(zones, s.Zone)
		}
	}
	return zones
}

// recordFromRow rebuilds a FitmentRecord from a query row holding make,
// model, the fitment node f and its slot nodes.
func recordFromRow(makeName, modelName string, fitment any, slots []any) domain.FitmentRecord {
	props := propsOf(fitment)
	r := domain.FitmentRecord{
		ID:        strProp(props, "id"),
		Make:      makeName,
		Model:     modelName,
		YearStart: intProp(props, "year_start"),
		YearEnd:   intProp(props, "year_end"),
		Years:     intsProp(props, "years"),
		Trim:      strProp(props, "trim"),
		BodyStyle: strProp(props, "body_style"),
		Notes:     strProp(props, "notes"),
		Seq:       intProp(props, "seq"),
	}
	radio := domain.RadioParts{
		DashKit:        strProp(props, "dash_kit"),
		Harness:        strProp(props, "radio_harness"),
		AntennaAdapter: strProp(props, "antenna_adapter"),
		AmpBypass:      strProp(props, "amp_bypass"),
	}
	if radio != (domain.RadioParts{}) {
		r.Radio = &radio
	}

	type positioned struct {
		pos  int
		slot domain.SpeakerSlot
	}
	byZone := map[string][]positioned{}
	for _, raw := range slots {
		sp := propsOf(raw)
		if sp == nil {
			continue
		}
		zone := strProp(sp, "zone")
		byZone[zone] = append(byZone[zone], positioned{
			pos:  intProp(sp, "position"),
			slot: domain.SpeakerSlot{
				Location: strProp(sp, "location"),
				Size:     strProp(sp, "size"),
				Adapter:  strProp(sp, "adapter"),
				Harness:  strProp(sp, "harness"),
			},
		})
	}
	if len(byZone) > 0 {
		r.Speakers = make(map[string][]domain.SpeakerSlot, len(byZone))
		for zone, ps := range byZone {
			slices.SortStableFunc(ps, func(a, b positioned) int { return a.pos - b.pos })
			out := make([]domain.SpeakerSlot, len(ps))
			for i, p := range ps {
				out[i] = p.slot
			}
			r.Speakers[zone] = out
		}
	}
	return r
}

// propsOf reads properties from a driver node or, in tests, a plain map.
func propsOf(v any) map[string]any {
	switch n := v.(type) {
	case dbtype.Node:
		return n.Props
	case *dbtype.Node:
		if n != nil {
			return n.Props
		}
	case map[string]any:
		return n
	}
	return nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intProp(props map[string]any, key string) int {
	return toInt(props[key])
}

func toInt(v any) int {
	switch v := v.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func intsProp(props map[string]any, key string) []int {
	var out []int
	switch v := props[key].(type) {
	case []any:
		for _, item := range v {
			if y := toInt(item); y > 0 {
				out = append(out, y)
			}
		}
	case []int64:
		for _, y := range v {
			out = append(out, int(y))
		}
	}
	return out
}
