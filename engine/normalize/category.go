package normalize

import (
	"strings"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

type categoryRule struct {
	keywords []string
	category domain.Category
}

// categoryRules are checked in order; the first rule with a matching
// keyword wins.
var categoryRules = []categoryRule{
	{[]string{"speaker", "front", "rear", "tweeter", "component", "coax"}, domain.CategorySpeakers},
	{[]string{"sub", "woofer"}, domain.CategorySubwoofers},
	{[]string{"amp"}, domain.CategoryAmplifiers},
	{[]string{"dash", "kit", "harness", "adapter", "interface", "mount"}, domain.CategoryInstall},
}

// Category maps a free-text catalog category onto the display taxonomy.
func Category(raw string) domain.Category {
	c := strings.ToLower(raw)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(c, kw) {
				return rule.category
			}
		}
	}
	return domain.CategoryOther
}
