package sources

import (
	"strings"
)

// Quote currencies a market id may carry next to the base ticker.
var quoteCurrencies = map[string]struct{}{
	"KRW":  {},
	"USD":  {},
	"USDT": {},
	"USDC": {},
	"BTC":  {},
}

// NormalizeSymbol converts user or market input to the bare ticker used as
// the cache and registry key.
// Examples:
//   - btc -> BTC
//   - KRW-BTC -> BTC
//   - BTC/USDT -> BTC
//   - eth_krw -> ETH
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '_'
	})
	if len(parts) != 2 {
		return s
	}

	// Upbit style puts the quote first (KRW-BTC).
	if IsQuoteCurrency(parts[0]) && !IsQuoteCurrency(parts[1]) {
		return parts[1]
	}
	return parts[0]
}

// IsQuoteCurrency reports whether s is a known quote currency.
func IsQuoteCurrency(s string) bool {
	_, ok := quoteCurrencies[strings.ToUpper(s)]
	return ok
}
