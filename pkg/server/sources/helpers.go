// Package sources provides price source interfaces and implementations.
package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
)

var hundred = decimal.NewFromInt(100)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.go.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}
	return logging.NewNoopLogger()
}

// ParsePairsFromMap extracts pair mappings from config where pairs is a map.
// Expected format: pairs: { "BTC": "KRW-BTC", "ETH": "KRW-ETH" }.
// Keys are normalized tickers, values are the source's own market ids.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	var pairsMap map[string]interface{}
	switch v := pairsRaw.(type) {
	case map[string]interface{}:
		pairsMap = v
	case map[string]string:
		pairsMap = make(map[string]interface{}, len(v))
		for k, s := range v {
			pairsMap[k] = s
		}
	default:
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for unified, sourceRaw := range pairsMap {
		source, ok := sourceRaw.(string)
		if !ok || strings.TrimSpace(source) == "" {
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, unified, sourceRaw)
		}
		ticker := NormalizeSymbol(unified)
		if err := ValidateSymbolFormat(ticker); err != nil {
			return nil, fmt.Errorf("unified symbol: %w", err)
		}
		pairs[ticker] = strings.TrimSpace(source)
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w", ErrNoPairsConfigured)
	}

	return pairs, nil
}

// ValidateSymbolFormat checks that a symbol is a bare upper-case ticker
// Valid: "BTC", "ETH", "1INCH". Invalid: "", "btc", "BTC/USDT", "KRW-BTC".
func ValidateSymbolFormat(symbol string) error {
	if symbol == "" || len(symbol) > 20 {
		return fmt.Errorf("%w: %q", ErrInvalidSymbolFormat, symbol)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("%w: %q", ErrInvalidSymbolFormat, symbol)
		}
	}
	return nil
}

// GetString returns a string config value or defaultValue.
func GetString(config map[string]interface{}, key, defaultValue string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

// GetBool returns a bool config value or defaultValue.
func GetBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return defaultValue
}

// GetDuration reads a duration given either as a string ("5s") or as
// integer milliseconds.
func GetDuration(config map[string]interface{}, key string, defaultValue time.Duration) time.Duration {
	switch v := config[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	case time.Duration:
		return v
	}
	return defaultValue
}

// ParseDecimal parses a required numeric field.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad number %q", ErrInvalidResponse, s)
	}
	return d, nil
}

// ParseNullDecimal parses an optional numeric field; empty or malformed
// input is absent, not zero.
func ParseNullDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// FractionToPercent turns a ratio such as 0.0123 into 1.23.
func FractionToPercent(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Mul(hundred))
}

// ChangePercent returns (last-open)/open*100, absent when open is unknown or zero.
func ChangePercent(open decimal.NullDecimal, last decimal.Decimal) decimal.NullDecimal {
	if !open.Valid || open.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(last.Sub(open.Decimal).Div(open.Decimal).Mul(hundred))
}

// MillisToTime converts a unix millisecond timestamp, falling back to now.
func MillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
