package engine

import (
	"fmt"
	"testing"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regular(title string) *domain.MethodGroup {
	return &domain.MethodGroup{Title: title, Names: []string{title + "_1"}, HasDeposit: true, Provenance: domain.ProvenanceAPI}
}

func crypto(title string) *domain.MethodGroup {
	return &domain.MethodGroup{Title: title, HasDeposit: true, HasWithdraw: true, IsCrypto: true, Provenance: domain.ProvenanceAPI}
}

func TestRank_Precedence(t *testing.T) {
	p := DefaultPolicy()

	visa := regular("Visa")
	visa.IsRecommended = true
	bankWD := regular("Bank WD")
	bankWD.HasDeposit = false
	bankWD.HasWithdraw = true
	blik := regular("Blik")
	blik.Provenance = domain.ProvenanceTemp
	zimpler := regular("Zimpler")
	zimpler.Provenance = domain.ProvenanceHardcoded

	groups := []*domain.MethodGroup{
		blik, bankWD, crypto("BTC - Bitcoin"), crypto("USDT"), crypto("Crypto"),
		regular("Jeton"), regular("Binance Pay"), zimpler,
		regular("Neteller"), visa, regular("Skrill"),
	}
	order := []string{"Skrill", "Neteller", "Visa", "Jeton", "Binance Pay", "Bank WD", "Blik", "BTC - Bitcoin", "USDT", "Crypto"}

	got := titles(Rank(groups, order, p))
	assert.Equal(t, []string{
		"Visa", "Skrill", "Neteller", "Zimpler",
		"Binance Pay", "Jeton",
		"Crypto", "USDT", "BTC - Bitcoin",
		"Bank WD", "Blik",
	}, got)
}

func TestRank_AbsentTitlesByTierThenWithdraw(t *testing.T) {
	p := DefaultPolicy()

	a := regular("Alpha")
	a.Conditions = []string{"2DEP"}
	b := regular("Beta")
	b.Conditions = []string{"1DEP"}
	c := regular("Gamma")
	d := regular("Delta")
	d.HasWithdraw = true

	got := titles(Rank([]*domain.MethodGroup{a, b, c, d}, nil, p))
	assert.Equal(t, []string{"Beta", "Alpha", "Delta", "Gamma"}, got)
}

func TestRank_CryptoSuffixTieBreak(t *testing.T) {
	p := DefaultPolicy()
	got := titles(Rank([]*domain.MethodGroup{
		crypto("BTC - Lightning"), crypto("BTC"), crypto("Shiba"), crypto("ETH - Base"),
	}, nil, p))
	assert.Equal(t, []string{"BTC", "BTC - Lightning", "ETH - Base", "Shiba"}, got)
}

func TestRank_PinnedSplice(t *testing.T) {
	p := DefaultPolicy()

	pinned := regular("ApplePay Visa")
	pinned.Provenance = domain.ProvenanceHardcoded
	pinned.Pinned = true

	build := func(n int) ([]*domain.MethodGroup, []string) {
		groups := []*domain.MethodGroup{pinned}
		var order []string
		for i := 0; i < n; i++ {
			title := fmt.Sprintf("Method %02d", i)
			groups = append(groups, regular(title))
			order = append(order, title)
		}
		return groups, order
	}

	groups, order := build(15)
	ranked := Rank(groups, order, p)
	require.Len(t, ranked, 16)
	assert.Equal(t, "ApplePay Visa", ranked[10].Title)
	assert.Equal(t, "Method 09", ranked[9].Title)
	assert.Equal(t, "Method 10", ranked[11].Title)

	groups, order = build(5)
	ranked = Rank(groups, order, p)
	require.Len(t, ranked, 6)
	assert.Equal(t, "ApplePay Visa", ranked[5].Title)
}

func TestRank_PinnedSiblingStaysAdjacent(t *testing.T) {
	agg := buildGeo("DE", "EUR", &domain.LoginMethods{DepositMethods: pairs(
		"M1", "M1_a", "M2", "M2_a", "M3", "M3_a", "M4", "M4_a", "M5", "M5_a", "M6", "M6_a",
		"M7", "M7_a", "M8", "M8_a", "M9", "M9_a", "M10", "M10_a", "M11", "M11_a",
	)})
	out := Inject(agg, domain.EnvProd, DefaultPolicy(), true)

	rows := View(out, FilterAll, DefaultPolicy())
	require.Len(t, rows, 13)
	assert.Equal(t, "ApplePay Visa", rows[10].Title)
	assert.Equal(t, "Googlepay Visa", rows[11].Title)
	assert.Equal(t, "M11", rows[12].Title)
}

func TestCompare_TotalOrder(t *testing.T) {
	p := DefaultPolicy()
	groups := []*domain.MethodGroup{
		regular("Visa"), regular("visa card"), crypto("Crypto"), crypto("USDT"), regular("Jeton"),
	}
	order := []string{"Visa"}
	for _, a := range groups {
		assert.Equal(t, 0, Compare(a, a, order, p))
		for _, b := range groups {
			if a == b {
				continue
			}
			assert.Equal(t, -Compare(b, a, order, p), Compare(a, b, order, p), "%s vs %s", a.Title, b.Title)
			assert.NotZero(t, Compare(a, b, order, p))
		}
	}
}

func TestFilter(t *testing.T) {
	one := regular("One")
	one.Conditions = []string{"1DEP"}
	eleven := regular("Eleven")
	eleven.Conditions = []string{"11DEP", "MOB"}
	eleven.IsRecommended = true
	none := regular("None")

	groups := []*domain.MethodGroup{one, eleven, none}

	assert.Len(t, Filter(groups, ""), 3)
	assert.Len(t, Filter(groups, "ALL"), 3)
	assert.Equal(t, []string{"One"}, titles(Filter(groups, "1DEP")))
	assert.Equal(t, []string{"Eleven"}, titles(Filter(groups, "mob")))
	assert.Equal(t, []string{"Eleven"}, titles(Filter(groups, "recommended")))
	assert.Empty(t, Filter(groups, "AFF"))

	assert.True(t, ValidFilter("11dep"))
	assert.True(t, ValidFilter("Recommended"))
	assert.False(t, ValidFilter("DEP"))
	assert.False(t, ValidFilter("drop table"))
}
