package engine

import (
	"strings"
	"unicode"
)

// Normalize folds a string for case-insensitive comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// compact lowercases and strips every whitespace rune.
func compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// AliasRule collapses visually-equivalent titles into one canonical title.
// Matching is exact after case and whitespace folding.
type AliasRule struct {
	Name    string
	From    []string
	To      string
	Enabled bool
}

// AliasSkrill is the toggleable SKRL → Skrill rule.
const AliasSkrill = "skrl_skrill"

func DefaultAliasRules() []AliasRule {
	return []AliasRule{
		{Name: "applepay", From: []string{"apple pay"}, To: "Applepay", Enabled: true},
		{Name: "visa_mastercard", From: []string{"visa/mc", "visamc"}, To: "Visa/Mastercard", Enabled: true},
		{Name: AliasSkrill, From: []string{"skrl"}, To: "Skrill", Enabled: false},
	}
}

type AliasTable struct {
	rules map[string]string
}

func NewAliasTable(rules []AliasRule) AliasTable {
	t := AliasTable{rules: make(map[string]string)}
	for _, rule := range rules {
		if !rule.Enabled || strings.TrimSpace(rule.To) == "" {
			continue
		}
		for _, from := range rule.From {
			key := compact(from)
			if key == "" {
				continue
			}
			t.rules[key] = strings.TrimSpace(rule.To)
		}
	}
	return t
}

// Canonical returns the display title a raw title groups under.
func (t AliasTable) Canonical(title string) string {
	if to, ok := t.rules[compact(title)]; ok {
		return to
	}
	return strings.TrimSpace(title)
}

// Key is the grouping key of a raw title.
func (t AliasTable) Key(title string) string {
	return Normalize(t.Canonical(title))
}

// PairKey is the lookup key of one (title, name) variant.
func (t AliasTable) PairKey(title, name string) string {
	return t.Key(title) + "|||" + Normalize(name)
}

// SplitLegacyKey splits a "title|||name" key as emitted by the backend.
func SplitLegacyKey(key string) (string, string, bool) {
	title, name, ok := strings.Cut(key, "|||")
	if !ok {
		return "", "", false
	}
	return title, name, true
}
