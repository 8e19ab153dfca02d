package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

// Inject returns a copy of agg with the policy's synthetic methods added.
// Synthetic groups from an earlier pass are always dropped first, so calling
// Inject on its own output is safe. agg is never modified.
func Inject(agg *domain.GeoAggregate, env domain.Env, p Policy, enabled bool) *domain.GeoAggregate {
	if agg == nil {
		return nil
	}
	out := agg.Clone()
	dropSynthetic(out, p.Aliases)

	if !enabled || env != domain.EnvProd || !hasGenuine(out) {
		return out
	}

	if p.HardcodedEnabled {
		for _, hm := range p.Hardcoded {
			injectHardcoded(out, hm, p)
		}
	}
	if p.DeriveSiblings {
		deriveSiblings(out, p)
	}
	return out
}

func dropSynthetic(agg *domain.GeoAggregate, aliases AliasTable) {
	removed := make(map[string]struct{})
	for key, g := range agg.Groups {
		if !g.IsSynthetic() {
			continue
		}
		removed[Normalize(g.Title)] = struct{}{}
		for _, name := range g.Names {
			delete(agg.MinDepositIndex, aliases.PairKey(g.Title, name))
		}
		delete(agg.Groups, key)
	}
	if len(removed) == 0 {
		return
	}
	order := agg.OriginalOrder[:0]
	for _, title := range agg.OriginalOrder {
		if _, ok := removed[Normalize(title)]; ok {
			continue
		}
		order = append(order, title)
	}
	agg.OriginalOrder = order
}

func hasGenuine(agg *domain.GeoAggregate) bool {
	for _, g := range agg.Groups {
		if !g.IsSynthetic() {
			return true
		}
	}
	return false
}

func injectHardcoded(agg *domain.GeoAggregate, hm HardcodedMethod, p Policy) {
	if hm.Temp && !p.TempMethodsEnabled {
		return
	}
	if !hm.Applies(agg.Geo, agg.Currency, p.EuroGeo) {
		return
	}
	key := p.Aliases.Key(hm.Title)
	if _, exists := agg.Groups[key]; exists {
		return
	}

	conditions := ExtractTags(hm.Name)
	if hm.Condition != "" {
		conditions = []string{strings.ToUpper(strings.TrimSpace(hm.Condition))}
	}
	provenance := domain.ProvenanceHardcoded
	if hm.Temp {
		provenance = domain.ProvenanceTemp
	}
	g := &domain.MethodGroup{
		Title:         p.Aliases.Canonical(hm.Title),
		Names:         []string{hm.Name},
		Conditions:    conditions,
		HasDeposit:    hm.Deposit,
		HasWithdraw:   hm.Withdraw,
		IsRecommended: hm.Recommended,
		Provenance:    provenance,
		Pinned:        hm.Pinned,
	}
	if hm.MinDeposit > 0 {
		v := hm.MinDeposit
		g.MinDeposit = &v
		agg.MinDepositIndex[p.Aliases.PairKey(g.Title, hm.Name)] = v
	}
	agg.Groups[key] = g
}

func deriveSiblings(agg *domain.GeoAggregate, p Policy) {
	rule := p.Sibling
	if rule.SourceToken == "" || rule.TargetToken == "" {
		return
	}
	source := regexp.MustCompile("(?i)" + regexp.QuoteMeta(rule.SourceToken))
	marker := Normalize(rule.DisqualifyingMarker)

	keys := make([]string, 0, len(agg.Groups))
	for key := range agg.Groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		src := agg.Groups[key]
		if src.IsAutoGenerated() || !source.MatchString(src.Title) {
			continue
		}
		if marker != "" && anyNameContains(src.Names, marker) {
			continue
		}

		title := source.ReplaceAllLiteralString(src.Title, rule.TargetToken)
		derivedKey := p.Aliases.Key(title)
		if _, exists := agg.Groups[derivedKey]; exists {
			continue
		}

		d := src.Clone()
		d.Title = p.Aliases.Canonical(title)
		d.Provenance = domain.ProvenanceDerived
		d.DerivedFrom = src.Title
		d.Names = d.Names[:0]
		for _, name := range src.Names {
			derivedName := source.ReplaceAllLiteralString(name, rule.TargetToken)
			d.Names = mergeSorted(d.Names, derivedName)
			if v, ok := agg.MinDepositIndex[p.Aliases.PairKey(src.Title, name)]; ok {
				agg.MinDepositIndex[p.Aliases.PairKey(d.Title, derivedName)] = v
			}
		}
		agg.Groups[derivedKey] = d
		insertAfter(agg, src.Title, d.Title)
	}
}

func anyNameContains(names []string, marker string) bool {
	for _, name := range names {
		if strings.Contains(Normalize(name), marker) {
			return true
		}
	}
	return false
}

// insertAfter places title right behind anchor in the original order, when
// the anchor is part of it.
func insertAfter(agg *domain.GeoAggregate, anchor, title string) {
	for i, t := range agg.OriginalOrder {
		if Normalize(t) != Normalize(anchor) {
			continue
		}
		order := make([]string, 0, len(agg.OriginalOrder)+1)
		order = append(order, agg.OriginalOrder[:i+1]...)
		order = append(order, title)
		order = append(order, agg.OriginalOrder[i+1:]...)
		agg.OriginalOrder = order
		return
	}
}
