package fitment

import (
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// Display groups for speaker slots, in the order a counter screen lists them.
const (
	GroupFront      = "front"
	GroupRear       = "rear"
	GroupDash       = "dash"
	GroupCenter     = "center"
	GroupPillar     = "pillar"
	GroupDeck       = "deck"
	GroupSubwoofers = "subwoofers"
	GroupOther      = "other"
)

// Groups lists every display group in order.
var Groups = []string{GroupFront, GroupRear, GroupDash, GroupCenter, GroupPillar, GroupDeck, GroupSubwoofers, GroupOther}

// groupRules is checked in order against the lower-cased location.
var groupRules = []struct {
	group    string
	keywords []string
}{
	{GroupSubwoofers, []string{"sub"}},
	{GroupDash, []string{"dash"}},
	{GroupCenter, []string{"center"}},
	{GroupPillar, []string{"pillar"}},
	{GroupDeck, []string{"deck"}},
	{GroupRear, []string{"rear"}},
	{GroupFront, []string{"front", "door"}},
}

// GroupOf classifies a slot location into a display group.
func GroupOf(location string) string {
	loc := strings.ToLower(location)
	for _, rule := range groupRules {
		for _, kw := range rule.keywords {
			if strings.Contains(loc, kw) {
				return rule.group
			}
		}
	}
	return GroupOther
}

// GroupSlots buckets every slot of rec by location keyword. Slots keep their
// zone order within a group.
func GroupSlots(rec *domain.FitmentRecord) map[string][]domain.SpeakerSlot {
	out := make(map[string][]domain.SpeakerSlot)
	if rec == nil {
		return out
	}
	for _, slot := range rec.Slots() {
		g := GroupOf(slot.Location)
		out[g] = append(out[g], slot)
	}
	return out
}
