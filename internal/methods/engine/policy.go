package engine

import (
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

// HardcodedMethod is a policy-injected method the backend does not return.
type HardcodedMethod struct {
	Title       string
	Name        string
	GeoPrefixes []string
	EuroOnly    bool
	Recommended bool
	Deposit     bool
	Withdraw    bool
	Condition   string
	MinDeposit  float64
	Pinned      bool
	Temp        bool
}

// Applies reports whether the method belongs to the given GEO.
func (m HardcodedMethod) Applies(geo, currency string, euroGeo EuroGeoFunc) bool {
	if m.EuroOnly {
		return euroGeo != nil && euroGeo(geo, currency)
	}
	upper := strings.ToUpper(strings.TrimSpace(geo))
	for _, prefix := range m.GeoPrefixes {
		p := strings.ToUpper(strings.TrimSpace(prefix))
		if p != "" && strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

// SiblingRule derives a counterpart method by swapping a brand token.
type SiblingRule struct {
	SourceToken         string
	TargetToken         string
	DisqualifyingMarker string
}

// EuroGeoFunc decides whether a GEO settles in EUR.
type EuroGeoFunc func(geo, currency string) bool

// EuroGeoRule parameterises DefaultEuroGeo.
type EuroGeoRule struct {
	CountryPrefixes []string
	LocalCurrencies []string
}

func DefaultEuroGeoRule() EuroGeoRule {
	return EuroGeoRule{
		CountryPrefixes: []string{"FI", "AT", "DE", "IT", "SE", "GR", "IE", "ES", "PT"},
		LocalCurrencies: []string{"PLN", "DKK", "CHF", "NOK", "HUF", "AUD", "CAD", "USD"},
	}
}

// SettlementCurrency infers a GEO's currency: the reported one when known,
// otherwise a "_XXX" suffix in the GEO name, otherwise EUR.
func (r EuroGeoRule) SettlementCurrency(geo, reported string) string {
	reported = strings.ToUpper(strings.TrimSpace(reported))
	if reported != "" && reported != domain.CurrencyUnknown {
		return reported
	}
	upper := strings.ToUpper(geo)
	for _, cur := range r.LocalCurrencies {
		if strings.Contains(upper, "_"+strings.ToUpper(cur)) {
			return strings.ToUpper(cur)
		}
	}
	return "EUR"
}

// DefaultEuroGeo is the stock Euro-GEO heuristic: EUR settlement, an explicit
// _EUR suffix, or a bare euro-area country code.
func DefaultEuroGeo(rule EuroGeoRule) EuroGeoFunc {
	return func(geo, currency string) bool {
		upper := strings.ToUpper(strings.TrimSpace(geo))
		if rule.SettlementCurrency(geo, currency) == "EUR" || strings.Contains(upper, "_EUR") {
			return true
		}
		if strings.Contains(upper, "_") {
			return false
		}
		for _, prefix := range rule.CountryPrefixes {
			if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
				return true
			}
		}
		return false
	}
}

// Policy is the configuration snapshot one aggregation run works with.
type Policy struct {
	Aliases            AliasTable
	SpecialBrands      []string
	Hardcoded          []HardcodedMethod
	HardcodedEnabled   bool
	TempMethodsEnabled bool
	DeriveSiblings     bool
	Sibling            SiblingRule
	PinnedPosition     int
	EuroGeo            EuroGeoFunc
}

func DefaultHardcodedMethods() []HardcodedMethod {
	return []HardcodedMethod{
		{
			Title:       "Zimpler",
			Name:        "Zimpler_Zimpler_Banks",
			GeoPrefixes: []string{"FI"},
			Deposit:     true,
			MinDeposit:  10,
		},
		{
			Title:       "Blik",
			Name:        "Blik_Blik_Banks",
			GeoPrefixes: []string{"PL"},
			Deposit:     true,
			MinDeposit:  20,
			Temp:        true,
		},
		{
			Title:      "ApplePay Visa",
			Name:       "Applepay_Gumballpay_Cards_1DEP",
			EuroOnly:   true,
			Deposit:    true,
			Condition:  "1DEP",
			MinDeposit: 20,
			Pinned:     true,
		},
	}
}

func DefaultPolicy() Policy {
	return Policy{
		Aliases:          NewAliasTable(DefaultAliasRules()),
		SpecialBrands:    []string{"Binance Pay", "Jeton"},
		Hardcoded:        DefaultHardcodedMethods(),
		HardcodedEnabled: true,
		DeriveSiblings:   true,
		Sibling: SiblingRule{
			SourceToken:         "applepay",
			TargetToken:         "Googlepay",
			DisqualifyingMarker: "colibrix",
		},
		PinnedPosition: 10,
		EuroGeo:        DefaultEuroGeo(DefaultEuroGeoRule()),
	}
}

// specialBrandIndex returns the sub-order of a special brand, or -1.
func (p Policy) specialBrandIndex(title string) int {
	key := p.Aliases.Key(title)
	for i, brand := range p.SpecialBrands {
		if p.Aliases.Key(brand) == key {
			return i
		}
	}
	return -1
}
