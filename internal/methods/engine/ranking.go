package engine

import (
	"regexp"
	"sort"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

const (
	FilterAll         = "all"
	FilterRecommended = "recommended"
)

var filterTagPattern = regexp.MustCompile(`^(\d+DEP|AFF|MOB)$`)

// ValidFilter reports whether f is a filter View understands.
func ValidFilter(f string) bool {
	f = strings.TrimSpace(f)
	if f == "" || strings.EqualFold(f, FilterAll) || strings.EqualFold(f, FilterRecommended) {
		return true
	}
	return filterTagPattern.MatchString(strings.ToUpper(f))
}

const (
	categoryRegular = iota
	categorySpecial
	categoryCrypto
)

type ranker struct {
	policy Policy
	index  map[string]int
}

func newRanker(order []string, p Policy) *ranker {
	r := &ranker{policy: p, index: make(map[string]int, len(order))}
	for i, title := range order {
		key := p.Aliases.Key(title)
		if _, ok := r.index[key]; !ok {
			r.index[key] = i
		}
	}
	return r
}

func (r *ranker) category(g *domain.MethodGroup) int {
	if r.policy.specialBrandIndex(g.Title) >= 0 {
		return categorySpecial
	}
	if g.IsCrypto {
		return categoryCrypto
	}
	return categoryRegular
}

func (r *ranker) compare(a, b *domain.MethodGroup) int {
	if c := compareBool(a.IsTemp(), b.IsTemp()); c != 0 {
		return c
	}
	if c := compareBool(a.WithdrawOnly(), b.WithdrawOnly()); c != 0 {
		return c
	}

	ca, cb := r.category(a), r.category(b)
	if c := compareInt(ca, cb); c != 0 {
		return c
	}

	switch ca {
	case categorySpecial:
		if c := compareInt(r.policy.specialBrandIndex(a.Title), r.policy.specialBrandIndex(b.Title)); c != 0 {
			return c
		}
	case categoryRegular:
		if c := compareBool(!a.IsRecommended, !b.IsRecommended); c != 0 {
			return c
		}
		ia, okA := r.index[r.policy.Aliases.Key(a.Title)]
		ib, okB := r.index[r.policy.Aliases.Key(b.Title)]
		switch {
		case okA && okB:
			if c := compareInt(ia, ib); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		default:
			if c := compareInt(DepositTier(a.Conditions), DepositTier(b.Conditions)); c != 0 {
				return c
			}
			if c := compareBool(!a.HasWithdraw, !b.HasWithdraw); c != 0 {
				return c
			}
		}
	case categoryCrypto:
		if c := compareInt(CryptoRank(a.Title), CryptoRank(b.Title)); c != 0 {
			return c
		}
		if c := strings.Compare(Normalize(stripSuffix(a.Title)), Normalize(stripSuffix(b.Title))); c != 0 {
			return c
		}
	}

	if c := strings.Compare(Normalize(a.Title), Normalize(b.Title)); c != 0 {
		return c
	}
	return strings.Compare(a.Title, b.Title)
}

// Compare is the single ordering used by the table view and every export.
func Compare(a, b *domain.MethodGroup, originalOrder []string, p Policy) int {
	return newRanker(originalOrder, p).compare(a, b)
}

// Rank orders groups with Compare and splices the pinned groups in at
// p.PinnedPosition, or at the end when there are fewer rows.
func Rank(groups []*domain.MethodGroup, originalOrder []string, p Policy) []*domain.MethodGroup {
	r := newRanker(originalOrder, p)

	var rest, pinned []*domain.MethodGroup
	for _, g := range groups {
		if g == nil {
			continue
		}
		if g.Pinned {
			pinned = append(pinned, g)
		} else {
			rest = append(rest, g)
		}
	}

	sort.SliceStable(rest, func(i, j int) bool { return r.compare(rest[i], rest[j]) < 0 })
	sort.SliceStable(pinned, func(i, j int) bool { return comparePinned(pinned[i], pinned[j]) < 0 })

	if len(pinned) == 0 {
		return rest
	}
	pos := p.PinnedPosition
	if pos < 0 {
		pos = 0
	}
	if pos > len(rest) {
		pos = len(rest)
	}
	out := make([]*domain.MethodGroup, 0, len(rest)+len(pinned))
	out = append(out, rest[:pos]...)
	out = append(out, pinned...)
	out = append(out, rest[pos:]...)
	return out
}

// comparePinned keeps each pinned source directly ahead of its derived sibling.
func comparePinned(a, b *domain.MethodGroup) int {
	root := func(g *domain.MethodGroup) string {
		if g.DerivedFrom != "" {
			return g.DerivedFrom
		}
		return g.Title
	}
	if c := strings.Compare(Normalize(root(a)), Normalize(root(b))); c != 0 {
		return c
	}
	if c := compareBool(a.IsAutoGenerated(), b.IsAutoGenerated()); c != 0 {
		return c
	}
	return strings.Compare(a.Title, b.Title)
}

// Filter keeps the groups matching f: all, recommended, or one condition tag.
func Filter(groups []*domain.MethodGroup, f string) []*domain.MethodGroup {
	f = strings.TrimSpace(f)
	if f == "" || strings.EqualFold(f, FilterAll) {
		return groups
	}
	out := make([]*domain.MethodGroup, 0, len(groups))
	for _, g := range groups {
		if strings.EqualFold(f, FilterRecommended) {
			if g.IsRecommended {
				out = append(out, g)
			}
			continue
		}
		for _, tag := range g.Conditions {
			if strings.EqualFold(tag, f) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// View is the ranked, filtered row list of one GEO.
func View(agg *domain.GeoAggregate, filter string, p Policy) []*domain.MethodGroup {
	if agg == nil {
		return nil
	}
	groups := make([]*domain.MethodGroup, 0, len(agg.Groups))
	for _, g := range agg.Groups {
		groups = append(groups, g)
	}
	return Rank(Filter(groups, filter), agg.OriginalOrder, p)
}

// compareBool sorts false before true.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
