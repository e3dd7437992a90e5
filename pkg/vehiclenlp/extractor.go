// Package vehiclenlp parses free-text vehicle mentions such as
// "2020 honda civic" or "'18 chevy silverado" into year, make and model.
// Makes and models come from a Vocabulary, normally the selector options
// of the loaded fitment data, so a match always names a vehicle the
// resolver knows about.
package vehiclenlp

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/WessleyAI/wessley-fitment/pkg/fn"
)

// VehicleMatch represents an extracted vehicle mention.
type VehicleMatch struct {
	Make       string  // e.g. "Honda"
	Model      string  // e.g. "Civic"
	Year       int     // e.g. 2019 (0 if not found)
	Confidence float64 // 0.0-1.0
	Span       string  // the matched text fragment
}

// Complete reports whether the match carries year, make and model.
func (m VehicleMatch) Complete() bool {
	return m.Year > 0 && m.Make != "" && m.Model != ""
}

// Vocabulary maps a display make to its display models.
type Vocabulary map[string][]string

// makeAliases maps abbreviations and nicknames to a make name. An alias is
// only active when its make is in the vocabulary.
var makeAliases = map[string]string{
	"chevy":    "chevrolet",
	"merc":     "mercedes-benz",
	"benz":     "mercedes-benz",
	"mercedes": "mercedes-benz",
	"vw":       "volkswagen",
	"caddy":    "cadillac",
	"olds":     "oldsmobile",
	"pont":     "pontiac",
	"alfa":     "alfa romeo",
}

// yearFullRe matches 4-digit years; yearAbbrRe matches 'YY abbreviations.
var (
	yearFullRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	yearAbbrRe = regexp.MustCompile(`'(\d{2})\b`)
)

type model struct {
	make, name, lower string
}

// Extractor finds vehicle mentions against a fixed vocabulary. It is safe
// for concurrent use.
type Extractor struct {
	makes  map[string]string  // lower name or alias -> display make
	models map[string][]model // lower make -> models, longest first
	unique []model            // models carried by exactly one make, longest first
	makeRe *regexp.Regexp
}

// New builds an Extractor over v.
func New(v Vocabulary) *Extractor {
	ex := &Extractor{
		makes:  make(map[string]string),
		models: make(map[string][]model),
	}

	modelCount := make(map[string]int)
	for mk, models := range v {
		lower := strings.ToLower(strings.TrimSpace(mk))
		if lower == "" {
			continue
		}
		ex.makes[lower] = strings.TrimSpace(mk)
		for _, name := range models {
			ml := strings.ToLower(strings.TrimSpace(name))
			if ml == "" {
				continue
			}
			ex.models[lower] = append(ex.models[lower], model{make: ex.makes[lower], name: strings.TrimSpace(name), lower: ml})
			modelCount[ml]++
		}
	}
	for alias, target := range makeAliases {
		if display, ok := ex.makes[target]; ok {
			if _, taken := ex.makes[alias]; !taken {
				ex.makes[alias] = display
			}
		}
	}

	for mk, models := range ex.models {
		slices.SortFunc(models, longestFirst)
		ex.models[mk] = models
		for _, m := range models {
			if modelCount[m.lower] == 1 {
				ex.unique = append(ex.unique, m)
			}
		}
	}
	slices.SortFunc(ex.unique, longestFirst)

	if len(ex.makes) == 0 {
		return ex
	}
	names := make([]string, 0, len(ex.makes))
	for name := range ex.makes {
		names = append(names, name)
	}
	// Longest first so "land rover" wins over "land".
	slices.SortFunc(names, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a, b))
	})
	for i, n := range names {
		names[i] = regexp.QuoteMeta(n)
	}
	ex.makeRe = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)(?:'s)?\b`)
	return ex
}

func longestFirst(a, b model) int {
	return cmp.Or(cmp.Compare(len(b.lower), len(a.lower)), cmp.Compare(a.lower, b.lower))
}

// Extract finds all vehicle mentions in text. Returns matches sorted by confidence.
func (ex *Extractor) Extract(text string) []VehicleMatch {
	if strings.TrimSpace(text) == "" || ex.makeRe == nil {
		return nil
	}
	var matches []VehicleMatch
	used := make(map[string]bool) // make|model|year

	for _, loc := range ex.makeRe.FindAllStringSubmatchIndex(text, -1) {
		canonical := ex.makes[strings.ToLower(text[loc[2]:loc[3]])]
		if canonical == "" {
			continue
		}

		afterStart := loc[1]
		after := text[afterStart:min(afterStart+40, len(text))]
		mdl, modelSpan := ex.findModel(canonical, after)

		before := text[max(0, loc[0]-10):loc[0]]
		year := findYear(before)
		if year == 0 {
			year = findYear(after[modelSpan:])
		}
		if year == 0 {
			year = findAbbrYear(before)
		}

		var conf float64
		switch {
		case year > 0 && mdl != "":
			conf = 0.95
		case mdl != "":
			conf = 0.80
		case year > 0:
			conf = 0.70
		default:
			conf = 0.60
		}

		spanStart := loc[0]
		if year > 0 {
			if idx := strings.Index(before, strconv.Itoa(year)); idx >= 0 {
				spanStart = loc[0] - len(before) + idx
			}
		}
		spanEnd := loc[1]
		if mdl != "" {
			spanEnd = afterStart + modelSpan
		}

		key := fmt.Sprintf("%s|%s|%d", canonical, mdl, year)
		if used[key] {
			continue
		}
		used[key] = true
		matches = append(matches, VehicleMatch{
			Make:       canonical,
			Model:      mdl,
			Year:       year,
			Confidence: conf,
			Span:       strings.TrimSpace(text[spanStart:min(spanEnd, len(text))]),
		})
	}

	matches = append(matches, ex.findStandaloneModels(text, used)...)
	slices.SortStableFunc(matches, func(a, b VehicleMatch) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return matches
}

// ExtractBest returns the single highest-confidence match, or nil.
func (ex *Extractor) ExtractBest(text string) *VehicleMatch {
	matches := ex.Extract(text)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// findModel looks for a known model of mk at the start of after. spanEnd
// is the byte offset just past the model, or 0.
func (ex *Extractor) findModel(mk, after string) (name string, spanEnd int) {
	trimmed := strings.TrimLeftFunc(after, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == 0x2019
	})
	offset := len(after) - len(trimmed)
	lower := strings.ToLower(trimmed)

	for _, m := range ex.models[strings.ToLower(mk)] {
		if !strings.HasPrefix(lower, m.lower) || !boundaryAt(lower, len(m.lower)) {
			continue
		}
		return m.name, offset + len(m.lower)
	}
	return "", 0
}

// findStandaloneModels reports distinctive models mentioned without a make,
// e.g. "2022 camry".
func (ex *Extractor) findStandaloneModels(text string, used map[string]bool) []VehicleMatch {
	var matches []VehicleMatch
	lower := strings.ToLower(text)
	taken := make([]bool, len(lower))

	for _, m := range ex.unique {
		// Two-letter names like "RX" are too ambiguous on their own.
		if len(m.lower) <= 2 && !strings.Contains(m.lower, "-") {
			continue
		}
		idx := wordIndex(lower, m.lower)
		if idx < 0 || taken[idx] {
			continue
		}
		end := idx + len(m.lower)
		if madeBefore(used, m) {
			continue
		}

		nearStart := max(0, idx-12)
		nearEnd := min(end+12, len(text))
		year := findYear(text[nearStart:nearEnd])
		if year == 0 {
			year = findAbbrYear(text[nearStart:idx])
		}

		conf := 0.50
		if year > 0 {
			conf = 0.75
		}
		key := fmt.Sprintf("%s|%s|%d", m.make, m.name, year)
		if used[key] {
			continue
		}
		used[key] = true
		for i := idx; i < end; i++ {
			taken[i] = true
		}
		matches = append(matches, VehicleMatch{
			Make:       m.make,
			Model:      m.name,
			Year:       year,
			Confidence: conf,
			Span:       strings.TrimSpace(text[nearStart:nearEnd]),
		})
	}
	return matches
}

// madeBefore reports whether m was already matched behind its make.
func madeBefore(used map[string]bool, m model) bool {
	prefix := m.make + "|" + m.name + "|"
	for k := range used {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// wordIndex returns the first index of word in s on word boundaries, or -1.
func wordIndex(s, word string) int {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		if (i == 0 || !isWordByte(s[i-1])) && boundaryAt(s, i+len(word)) {
			return i
		}
		from = i + 1
	}
	return -1
}

func boundaryAt(s string, i int) bool {
	return i >= len(s) || !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func findYear(s string) int {
	m := yearFullRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	if y >= 1950 && y <= 2040 {
		return y
	}
	return 0
}

func findAbbrYear(s string) int {
	m := yearAbbrRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	yy, _ := strconv.Atoi(m[1])
	if yy <= 40 {
		return 2000 + yy
	}
	if yy >= 50 {
		return 1900 + yy
	}
	return 0
}

// OptionSource projects make and model options. fitment.Index satisfies it.
type OptionSource interface {
	MakeOptions(ctx context.Context, year int) ([]string, error)
	ModelOptions(ctx context.Context, year int, makeName string) ([]string, error)
}

// Load builds a Vocabulary from every make and model src offers. Model
// lookups run concurrently.
func Load(ctx context.Context, src OptionSource) (Vocabulary, error) {
	makes, err := src.MakeOptions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("vehiclenlp: makes: %w", err)
	}
	results := fn.ParMapResult(makes, 4, func(mk string) fn.Result[[]string] {
		models, err := src.ModelOptions(ctx, 0, mk)
		return fn.FromPair(models, err)
	})
	v := make(Vocabulary, len(makes))
	for i, r := range results {
		models, err := r.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("vehiclenlp: models of %s: %w", makes[i], err)
		}
		v[makes[i]] = models
	}
	return v, nil
}
