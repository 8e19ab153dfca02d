package engine

import "github.com/smallbiznis/paymatrix/internal/methods/domain"

// Contribution is what one login's method lists add to a GEO.
type Contribution struct {
	Groups      map[string]*domain.MethodGroup
	Order       []string
	Recommended map[string]struct{}
	MinDeposits []domain.MinDepositPayload
}

// Collect folds a single login response into per-title groups.
// A nil response yields an empty contribution.
func Collect(aliases AliasTable, methods *domain.LoginMethods) *Contribution {
	c := &Contribution{
		Groups:      make(map[string]*domain.MethodGroup),
		Recommended: make(map[string]struct{}),
	}
	if methods == nil {
		return c
	}

	deposit := pairSet(aliases, methods.DepositMethods)
	withdraw := pairSet(aliases, methods.WithdrawMethods)
	c.Recommended = pairSet(aliases, methods.RecommendedMethods)

	observe := func(pair domain.MethodPair) {
		if pair.Title == "" && pair.Name == "" {
			return
		}
		key := aliases.Key(pair.Title)
		group, ok := c.Groups[key]
		if !ok {
			group = &domain.MethodGroup{
				Title:      aliases.Canonical(pair.Title),
				Provenance: domain.ProvenanceAPI,
			}
			c.Groups[key] = group
			c.Order = append(c.Order, group.Title)
		}

		pk := aliases.PairKey(pair.Title, pair.Name)
		if pair.Name != "" {
			group.Names = mergeSorted(group.Names, pair.Name)
			group.Conditions = mergeSorted(group.Conditions, ExtractTags(pair.Name)...)
		}
		if _, ok := deposit[pk]; ok {
			group.HasDeposit = true
		}
		if _, ok := withdraw[pk]; ok {
			group.HasWithdraw = true
		}
		if _, ok := c.Recommended[pk]; ok {
			group.IsRecommended = true
		}
		if IsCryptoTitle(pair.Title) || IsCryptoName(pair.Name) {
			group.IsCrypto = true
		}
		if group.IsCrypto {
			group.HasDeposit = true
			group.HasWithdraw = true
		}
	}

	for _, pair := range methods.DepositMethods {
		observe(pair)
	}
	for _, pair := range methods.WithdrawMethods {
		observe(pair)
	}

	c.MinDeposits = MinDepositPayloads(methods)
	return c
}

func pairSet(aliases AliasTable, pairs []domain.MethodPair) map[string]struct{} {
	out := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		out[aliases.PairKey(pair.Title, pair.Name)] = struct{}{}
	}
	return out
}
