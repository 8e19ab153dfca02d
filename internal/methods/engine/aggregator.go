package engine

import (
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

// Aggregator merges login contributions of one GEO.
// It is not safe for concurrent use; one run owns one aggregator per GEO.
type Aggregator struct {
	geo         string
	aliases     AliasTable
	groups      map[string]*domain.MethodGroup
	order       []string
	seen        map[string]struct{}
	recommended map[string]struct{}
	minDeposits map[string]float64
	currencies  map[string]struct{}
}

func NewAggregator(geo string, aliases AliasTable) *Aggregator {
	return &Aggregator{
		geo:         geo,
		aliases:     aliases,
		groups:      make(map[string]*domain.MethodGroup),
		seen:        make(map[string]struct{}),
		recommended: make(map[string]struct{}),
		minDeposits: make(map[string]float64),
		currencies:  make(map[string]struct{}),
	}
}

// Add folds one login. currency may be empty when the login reported none.
func (a *Aggregator) Add(c *Contribution, currency string) {
	if cur := strings.ToUpper(strings.TrimSpace(currency)); cur != "" {
		a.currencies[cur] = struct{}{}
	}
	if c == nil {
		return
	}

	for _, title := range c.Order {
		key := a.aliases.Key(title)
		src := c.Groups[key]
		if src == nil {
			continue
		}
		if _, ok := a.seen[key]; !ok {
			a.seen[key] = struct{}{}
			a.order = append(a.order, src.Title)
		}

		dst, ok := a.groups[key]
		if !ok {
			a.groups[key] = src.Clone()
			continue
		}
		dst.Names = mergeSorted(dst.Names, src.Names...)
		dst.Conditions = mergeSorted(dst.Conditions, src.Conditions...)
		dst.HasDeposit = dst.HasDeposit || src.HasDeposit
		dst.HasWithdraw = dst.HasWithdraw || src.HasWithdraw
		dst.IsCrypto = dst.IsCrypto || src.IsCrypto
		if dst.IsCrypto {
			dst.HasDeposit = true
			dst.HasWithdraw = true
		}
	}

	for k := range c.Recommended {
		a.recommended[k] = struct{}{}
	}
	ReconcileMinDeposits(a.aliases, a.minDeposits, c.MinDeposits...)
}

// Finalize produces the GEO aggregate. It can be called repeatedly and always
// returns a fresh copy.
func (a *Aggregator) Finalize() *domain.GeoAggregate {
	out := &domain.GeoAggregate{
		Geo:             a.geo,
		Currency:        a.currency(),
		Groups:          make(map[string]*domain.MethodGroup, len(a.groups)),
		OriginalOrder:   append([]string{}, a.order...),
		MinDepositIndex: make(map[string]float64, len(a.minDeposits)),
	}
	for k, v := range a.minDeposits {
		out.MinDepositIndex[k] = v
	}
	for key, g := range a.groups {
		c := g.Clone()
		c.IsRecommended = false
		for _, name := range c.Names {
			if _, ok := a.recommended[a.aliases.PairKey(c.Title, name)]; ok {
				c.IsRecommended = true
				break
			}
		}
		c.MinDeposit = groupMinDeposit(a.aliases, out.MinDepositIndex, c)
		out.Groups[key] = c
	}
	return out
}

func (a *Aggregator) currency() string {
	if len(a.currencies) != 1 {
		return domain.CurrencyUnknown
	}
	for cur := range a.currencies {
		return cur
	}
	return domain.CurrencyUnknown
}

// Build aggregates stored contributions of one GEO, skipping failed logins.
func Build(geo string, aliases AliasTable, contributions []domain.LoginContribution) *domain.GeoAggregate {
	agg := NewAggregator(geo, aliases)
	for _, c := range contributions {
		if c.Failed() {
			continue
		}
		agg.Add(Collect(aliases, c.Methods), c.Currency)
	}
	return agg.Finalize()
}
