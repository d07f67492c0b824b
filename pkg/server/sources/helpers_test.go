package sources

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParsePairsFromMap_Valid(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]interface{}
		expected map[string]string
	}{
		{
			name: "domestic markets",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"BTC": "KRW-BTC",
					"ETH": "KRW-ETH",
				},
			},
			expected: map[string]string{
				"BTC": "KRW-BTC",
				"ETH": "KRW-ETH",
			},
		},
		{
			name: "lower case tickers are normalized",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{
					"btc": "BTCUSDT",
					"xrp": "XRPUSDT",
				},
			},
			expected: map[string]string{
				"BTC": "BTCUSDT",
				"XRP": "XRPUSDT",
			},
		},
		{
			name: "coingecko slugs",
			config: map[string]interface{}{
				"pairs": map[string]string{
					"BTC": "bitcoin",
					"ETH": "ethereum",
				},
			},
			expected: map[string]string{
				"BTC": "bitcoin",
				"ETH": "ethereum",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePairsFromMap(tt.config)
			if err != nil {
				t.Fatalf("ParsePairsFromMap failed: %v", err)
			}

			if len(result) != len(tt.expected) {
				t.Errorf("Expected %d pairs, got %d", len(tt.expected), len(result))
			}

			for unifiedSymbol, sourceSymbol := range tt.expected {
				got, ok := result[unifiedSymbol]
				if !ok {
					t.Errorf("Missing pair %s", unifiedSymbol)
					continue
				}
				if got != sourceSymbol {
					t.Errorf("For %s: expected %s, got %s", unifiedSymbol, sourceSymbol, got)
				}
			}
		})
	}
}

func TestParsePairsFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
	}{
		{
			name:   "missing pairs key",
			config: map[string]interface{}{},
		},
		{
			name: "pairs is not a map",
			config: map[string]interface{}{
				"pairs": "invalid",
			},
		},
		{
			name: "pairs is array instead of map",
			config: map[string]interface{}{
				"pairs": []interface{}{"BTC", "ETH"},
			},
		},
		{
			name: "empty pairs map",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{},
			},
		},
		{
			name: "non string market",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{"BTC": 1},
			},
		},
		{
			name: "ticker with punctuation",
			config: map[string]interface{}{
				"pairs": map[string]interface{}{"BT.C": "BTCUSDT"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParsePairsFromMap(tt.config)
			if err == nil {
				t.Error("Expected error but got none")
			}
			if result != nil {
				t.Errorf("Expected nil result on error, got %v", result)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"btc":       "BTC",
		" eth ":     "ETH",
		"KRW-BTC":   "BTC",
		"BTC/USDT":  "BTC",
		"xrp_krw":   "XRP",
		"USDT":      "USDT",
		"USDT-KRW":  "USDT",
		"1INCH-KRW": "1INCH",
	}
	for in, want := range tests {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDecimalHelpers(t *testing.T) {
	d, err := ParseDecimal("95000000.5")
	if err != nil {
		t.Fatalf("ParseDecimal failed: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("95000000.5")) {
		t.Errorf("unexpected value %s", d)
	}

	if _, err := ParseDecimal("abc"); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}

	if ParseNullDecimal("").Valid {
		t.Error("empty string should be absent")
	}
	if ParseNullDecimal("n/a").Valid {
		t.Error("malformed string should be absent")
	}

	pct := FractionToPercent(ParseNullDecimal("0.0123"))
	if !pct.Valid || !pct.Decimal.Equal(decimal.RequireFromString("1.23")) {
		t.Errorf("unexpected percent %v", pct)
	}

	change := ChangePercent(ParseNullDecimal("100"), decimal.NewFromInt(110))
	if !change.Valid || !change.Decimal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected change %v", change)
	}
	if ChangePercent(ParseNullDecimal("0"), decimal.NewFromInt(1)).Valid {
		t.Error("zero open must give absent change")
	}
}

func TestGetDuration(t *testing.T) {
	cfg := map[string]interface{}{
		"str":   "3s",
		"int":   1500,
		"float": float64(250),
		"bad":   "soon",
	}
	if got := GetDuration(cfg, "str", 0); got != 3*time.Second {
		t.Errorf("str: got %v", got)
	}
	if got := GetDuration(cfg, "int", 0); got != 1500*time.Millisecond {
		t.Errorf("int: got %v", got)
	}
	if got := GetDuration(cfg, "float", 0); got != 250*time.Millisecond {
		t.Errorf("float: got %v", got)
	}
	if got := GetDuration(cfg, "bad", time.Minute); got != time.Minute {
		t.Errorf("bad: got %v", got)
	}
}
