// Package normalize canonicalizes the free-text strings that fitment guides
// and catalogs disagree on: speaker sizes, part numbers, vehicle names and
// product categories. Every function is pure and total.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// fractions maps spelled fractional sizes to their decimal form.
var fractions = map[string]string{
	"6 1/2": "6.5",
	"5 1/4": "5.25",
	"6 3/4": "6.75",
	"3 1/2": "3.5",
	"2 1/2": "2.5",
}

var (
	fractionRe = regexp.MustCompile(`\b(?:6 1/2|5 1/4|6 3/4|3 1/2|2 1/2)\b`)
	byRe       = regexp.MustCompile(`(\d)\s*x\s*(\d)`)
	quotes     = strings.NewReplacer(`"`, "", "″", "", "“", "", "”", "")
	folder     = cases.Fold()
	titler     = cases.Title(language.English)
)

// Size canonicalizes a speaker size: `6 1/2"` -> "6.5", `6 X 9` -> "6x9".
// Empty input yields "", which callers treat as "no size".
func Size(s string) string {
	s = prepare(s)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	s = fractionRe.ReplaceAllStringFunc(s, func(m string) string { return fractions[m] })
	s = byRe.ReplaceAllString(s, "${1}x${2}")
	return stripSpace(s)
}

// Code canonicalizes a part number for case-insensitive comparison.
func Code(s string) string {
	return stripSpace(prepare(s))
}

// Name canonicalizes a make or model for comparison: case-folded with inner
// whitespace collapsed.
func Name(s string) string {
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// EqualName reports whether two makes or models are the same vehicle name.
func EqualName(a, b string) bool {
	return Name(a) == Name(b)
}

// Zone renders a zone key as a display label ("rear" -> "Rear").
func Zone(s string) string {
	return titler.String(strings.TrimSpace(s))
}

// prepare folds full-width forms, lower-cases, trims and drops quote marks.
func prepare(s string) string {
	s = width.Fold.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimSpace(quotes.Replace(s))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
