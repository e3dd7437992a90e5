package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FitmentID returns r.ID, or a stable id derived from the vehicle and trim so
// re-importing the same guide row updates instead of duplicating.
func FitmentID(r FitmentRecord) string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	key := fmt.Sprintf("fitment|%s|%s|%v|%d-%d|%s|%s",
		strings.ToLower(strings.TrimSpace(r.Make)), strings.ToLower(strings.TrimSpace(r.Model)),
		r.Years, r.YearStart, r.YearEnd,
		strings.ToLower(strings.TrimSpace(r.Trim)), strings.ToLower(strings.TrimSpace(r.BodyStyle)))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// ProductID returns p.ID, or a stable id derived from its sku or name.
func ProductID(p Product) string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	key := p.Key()
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("product|"+strings.ToLower(key))).String()
}
