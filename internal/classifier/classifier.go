// Package classifier maps raw discovered events to a category, an impact score and a
// price multiplier. Every decision is driven by ordered lookup data (keyword rules,
// capacity buckets, the impact table) so calibration never touches control flow.
package classifier

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/models"
)

// Rule assigns Category when any keyword occurs in the event text as whole words.
// A keyword of several words matches only as a contiguous phrase.
type Rule struct {
	Category models.Category
	Keywords []string

	phrases [][]string
}

// CapacityBucket assigns Impact to capacities strictly greater than Above.
type CapacityBucket struct {
	Above  int
	Impact int
}

// Classification is the result of classifying one raw event.
type Classification struct {
	Category   models.Category
	Impact     int
	Multiplier decimal.Decimal
}

// fallbackImpact applies when no capacity bucket matches.
const fallbackImpact = 2

// Priority order of category rules. The first matching rule wins.
var categoryOrder = []models.Category{
	models.CategoryFair,
	models.CategoryConcert,
	models.CategorySport,
	models.CategoryFashion,
}

// DefaultKeywords returns the built-in keyword lists, Italian and English.
func DefaultKeywords() map[models.Category][]string {
	return map[models.Category][]string{
		models.CategoryFair:    {"fiera", "fiere", "fair", "expo", "salone", "exhibition", "trade show", "mostra", "rho fiera"},
		models.CategoryConcert: {"concert", "concerts", "concerto", "concerti", "tour", "festival", "san siro live", "ippodromo", "music"},
		models.CategorySport:   {"match", "partita", "derby", "marathon", "maratona", "grand prix", "gran premio", "serie a", "champions", "tennis", "tournament", "torneo", "olimpia"},
		models.CategoryFashion: {"fashion", "moda", "sfilata", "sfilate", "runway", "catwalk"},
	}
}

// DefaultBuckets returns the attendance buckets, highest threshold first.
func DefaultBuckets() []CapacityBucket {
	return []CapacityBucket{
		{Above: 20000, Impact: 9},
		{Above: 10000, Impact: 7},
		{Above: 5000, Impact: 5},
		{Above: 1000, Impact: 3},
	}
}

// DefaultMultipliers returns the impact to price multiplier table.
func DefaultMultipliers() map[int]decimal.Decimal {
	return map[int]decimal.Decimal{
		10: decimal.RequireFromString("2.5"),
		9:  decimal.RequireFromString("2.2"),
		8:  decimal.RequireFromString("2.0"),
		7:  decimal.RequireFromString("1.6"),
		6:  decimal.RequireFromString("1.4"),
		5:  decimal.RequireFromString("1.3"),
		4:  decimal.RequireFromString("1.2"),
		3:  decimal.RequireFromString("1.1"),
		2:  decimal.RequireFromString("1.05"),
	}
}

// Config holds the calibration data. Zero-valued fields fall back to the defaults.
type Config struct {
	Keywords    map[models.Category][]string
	Multipliers map[int]decimal.Decimal
}

// Classifier is a pure function over its tables; it is safe for concurrent use.
type Classifier struct {
	rules       []Rule
	buckets     []CapacityBucket
	multipliers map[int]decimal.Decimal
}

// New builds a Classifier, rejecting a multiplier table that is not total over
// impacts 2..10 or that decreases as impact grows.
func New(cfg Config) (*Classifier, error) {
	keywords := DefaultKeywords()
	for cat, words := range cfg.Keywords {
		if !cat.Valid() {
			return nil, fmt.Errorf("unknown category %q in keyword overrides", cat)
		}
		keywords[cat] = words
	}

	rules := make([]Rule, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		words := make([]string, 0, len(keywords[cat]))
		phrases := make([][]string, 0, len(keywords[cat]))
		for _, w := range keywords[cat] {
			tokens := tokenize(w)
			if len(tokens) == 0 {
				continue
			}
			words = append(words, strings.Join(tokens, " "))
			phrases = append(phrases, tokens)
		}
		rules = append(rules, Rule{Category: cat, Keywords: words, phrases: phrases})
	}

	multipliers := DefaultMultipliers()
	for impact, m := range cfg.Multipliers {
		multipliers[impact] = m
	}
	if err := validateMultipliers(multipliers); err != nil {
		return nil, err
	}

	return &Classifier{
		rules:       rules,
		buckets:     DefaultBuckets(),
		multipliers: multipliers,
	}, nil
}

func validateMultipliers(table map[int]decimal.Decimal) error {
	impacts := make([]int, 0, len(table))
	for impact := range table {
		if impact < 1 || impact > 10 {
			return fmt.Errorf("impact %d outside 1..10 in multiplier table", impact)
		}
		impacts = append(impacts, impact)
	}
	for impact := 2; impact <= 10; impact++ {
		if _, ok := table[impact]; !ok {
			return fmt.Errorf("multiplier table missing impact %d", impact)
		}
	}
	sort.Ints(impacts)
	one := decimal.NewFromInt(1)
	for i, impact := range impacts {
		if !table[impact].GreaterThan(one) {
			return fmt.Errorf("multiplier for impact %d must be > 1.0, got %s", impact, table[impact])
		}
		if i > 0 && table[impact].LessThan(table[impacts[i-1]]) {
			return fmt.Errorf("multiplier table must be non-decreasing: impact %d (%s) < impact %d (%s)",
				impact, table[impact], impacts[i-1], table[impacts[i-1]])
		}
	}
	return nil
}

// Classify returns the category, impact score and multiplier for a raw event.
func (c *Classifier) Classify(raw models.RawEvent) Classification {
	impact := c.Impact(raw.Capacity)
	return Classification{
		Category:   c.Category(raw.Name, raw.Description),
		Impact:     impact,
		Multiplier: c.Multiplier(impact),
	}
}

// Category runs the priority-ordered keyword rules over name and description.
func (c *Classifier) Category(name, description string) models.Category {
	text := tokenize(name + " " + description)
	for _, rule := range c.rules {
		for _, phrase := range rule.phrases {
			if containsPhrase(text, phrase) {
				return rule.Category
			}
		}
	}
	return models.CategoryOther
}

// tokenize lowercases s and splits it into runs of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(text, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(text); i++ {
		match := true
		for j, w := range phrase {
			if text[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Impact maps an attendance capacity to an impact score. Negative capacity counts as zero.
func (c *Classifier) Impact(capacity int) int {
	if capacity < 0 {
		capacity = 0
	}
	for _, b := range c.buckets {
		if capacity > b.Above {
			return b.Impact
		}
	}
	return fallbackImpact
}

// Multiplier looks up the price multiplier for an impact score, 1.0 when unmapped.
func (c *Classifier) Multiplier(impact int) decimal.Decimal {
	if m, ok := c.multipliers[impact]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// Rules returns a copy of the ordered category rules.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
