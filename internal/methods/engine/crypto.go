package engine

import (
	"regexp"
	"sort"
	"strings"
)

// CryptoTitle is the umbrella crypto method title; it leads the crypto block.
const CryptoTitle = "Crypto"

// cryptoTickers is the rank order of the crypto block.
var cryptoTickers = []string{
	"USDTT", "USDT", "USDTE", "USDC", "BTC", "ETH", "LTC",
	"TRX", "XRP", "SOL", "ADA", "BCH", "TON", "DOGE",
}

// tickerMatchOrder checks longer tickers first so USDTT/USDTE win over USDT.
var tickerMatchOrder = func() []string {
	out := append([]string(nil), cryptoTickers...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}()

var cryptoNamePattern = regexp.MustCompile(`(?i)Coinspaid|Crypto|Tether|Bitcoin|Ethereum|Litecoin|Ripple|Tron|USDC|USDT|DOGE|Cardano|Solana|Toncoin`)

// Wallet brands whose identifiers mention crypto but which are shown as
// regular methods.
var cryptoExclusionPattern = regexp.MustCompile(`(?i)Jeton|Binance.*Pay`)

func isCryptoExcluded(s string) bool {
	return cryptoExclusionPattern.MatchString(s)
}

func matchTicker(title string) (int, bool) {
	upper := strings.ToUpper(strings.TrimSpace(title))
	for _, ticker := range tickerMatchOrder {
		if strings.HasPrefix(upper, ticker) {
			for i, t := range cryptoTickers {
				if t == ticker {
					return i, true
				}
			}
		}
	}
	return 0, false
}

func IsCryptoTitle(title string) bool {
	if isCryptoExcluded(title) {
		return false
	}
	if Normalize(title) == Normalize(CryptoTitle) {
		return true
	}
	_, ok := matchTicker(title)
	return ok
}

func IsCryptoName(name string) bool {
	if isCryptoExcluded(name) {
		return false
	}
	return cryptoNamePattern.MatchString(name)
}

// CryptoRank orders titles inside the crypto block; lower sorts first.
func CryptoRank(title string) int {
	if Normalize(title) == Normalize(CryptoTitle) {
		return -1
	}
	if idx, ok := matchTicker(title); ok {
		return idx
	}
	return len(cryptoTickers)
}

// stripSuffix drops a trailing " - ..." description from a crypto title.
func stripSuffix(title string) string {
	if before, _, ok := strings.Cut(title, " - "); ok {
		return strings.TrimSpace(before)
	}
	return strings.TrimSpace(title)
}
