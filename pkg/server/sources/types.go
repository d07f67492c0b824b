package sources

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Region classifies a source as domestic (KRW venues) or foreign.
type Region string

const (
	RegionDomestic Region = "DOMESTIC"
	RegionForeign  Region = "FOREIGN"
)

// ParseRegion parses a region name case-insensitively.
func ParseRegion(s string) (Region, error) {
	switch Region(strings.ToUpper(strings.TrimSpace(s))) {
	case RegionDomestic:
		return RegionDomestic, nil
	case RegionForeign:
		return RegionForeign, nil
	default:
		return "", ErrInvalidRegion
	}
}

// Currency returns the currency prices of this region are quoted in.
// Foreign venues quote in USD stablecoins, treated as USD.
func (r Region) Currency() string {
	if r == RegionDomestic {
		return "KRW"
	}
	return "USD"
}

// MarketStatus is the trading state a source reports for a market.
type MarketStatus string

const (
	StatusNormal   MarketStatus = "NORMAL"
	StatusHalted   MarketStatus = "HALTED"
	StatusDelisted MarketStatus = "DELISTED"
	StatusUnknown  MarketStatus = "UNKNOWN"
)

// Quote is one source's view of one symbol at one instant.
// Optional fields the source did not report stay invalid (absent) rather
// than zero so they never skew statistics.
type Quote struct {
	Symbol      string              `json:"symbol"`
	Source      string              `json:"source"`
	DisplayName string              `json:"display_name"`
	Region      Region              `json:"region"`
	Price       decimal.Decimal     `json:"price"`
	Currency    string              `json:"currency"`
	High24h     decimal.NullDecimal `json:"high_24h"`
	Low24h      decimal.NullDecimal `json:"low_24h"`
	Volume24h   decimal.NullDecimal `json:"volume_24h"`
	ChangeRate  decimal.NullDecimal `json:"change_rate"`
	Status      MarketStatus        `json:"status"`
	ObservedAt  time.Time           `json:"observed_at"`
}

// Source defines the interface that all price sources must implement
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// DisplayName returns a human readable name
	DisplayName() string

	// Region returns whether the source is a domestic or foreign venue
	Region() Region

	// Symbols returns the normalized tickers this source can quote
	Symbols() []string

	// Quote fetches the current quote for one symbol
	Quote(ctx context.Context, symbol string) (Quote, error)

	// AllQuotes fetches quotes for every supported symbol
	AllQuotes(ctx context.Context) ([]Quote, error)

	// TopQuotes returns up to limit quotes ranked by the source's own
	// ranking (market cap, volume). Sources without one return ErrRankingUnsupported.
	TopQuotes(ctx context.Context, limit int) ([]Quote, error)

	// IsHealthy returns whether the last call to the source succeeded.
	// It never blocks and does not guarantee the next call succeeds.
	IsHealthy() bool

	// Start begins any background work (streams); REST sources return immediately
	Start(ctx context.Context) error

	// Stop halts the source and cleans up resources
	Stop() error
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
