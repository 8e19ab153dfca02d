package engine

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

const (
	TagAffiliate = "AFF"
	TagMobile    = "MOB"
)

var depositTierPattern = regexp.MustCompile(`(?i)(\d+)DEP`)

// ExtractTags parses the condition tags encoded in a method name.
// The result is sorted and free of duplicates.
func ExtractTags(name string) []string {
	tags := make([]string, 0, 3)
	if m := depositTierPattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			tags = append(tags, strconv.Itoa(n)+"DEP")
		}
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "aff") {
		tags = append(tags, TagAffiliate)
	}
	if strings.Contains(lower, "mob") {
		tags = append(tags, TagMobile)
	}
	sort.Strings(tags)
	return tags
}

// FormatConditions renders a tag set the way the table and exports show it.
func FormatConditions(tags []string) string {
	if len(tags) == 0 {
		return domain.ConditionsAll
	}
	return strings.Join(sortedUnique(tags), "\n")
}

// DepositTier returns the smallest N of the NDEP tags, or 99 when none exist.
func DepositTier(tags []string) int {
	best := 99
	for _, tag := range tags {
		if !strings.HasSuffix(tag, "DEP") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(tag, "DEP"))
		if err != nil {
			continue
		}
		if n < best {
			best = n
		}
	}
	return best
}

// LoginTier extracts the deposit tier of a login identifier; 0 when absent.
func LoginTier(login string) int {
	m := depositTierPattern.FindStringSubmatch(login)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// SortLoginsByTier orders logins most-capable tier first, keeping the input
// order among equal tiers.
func SortLoginsByTier(logins []string) []string {
	out := append([]string(nil), logins...)
	sort.SliceStable(out, func(i, j int) bool {
		return LoginTier(out[i]) > LoginTier(out[j])
	})
	return out
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// mergeSorted returns the sorted union of a and b.
func mergeSorted(a []string, b ...string) []string {
	return sortedUnique(append(append([]string(nil), a...), b...))
}
