package fiat

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
)

// Provider names accepted by Build.
const (
	ProviderStatic          = "static"
	ProviderFrankfurter     = "frankfurter"
	ProviderExchangeRateAPI = "exchangerate_api"
)

// Config selects and tunes the exchange rate provider.
type Config struct {
	Provider        string
	Base            string
	Quote           string
	Rate            decimal.Decimal // static rate, also the fallback for polled providers when set
	APIURL          string
	RefreshInterval time.Duration
	MaxAge          time.Duration
	Timeout         time.Duration
}

// Build creates the configured provider. A polled provider with a positive
// static Rate falls back to that rate when the feed is down or stale.
func Build(cfg Config, logger *logging.Logger) (Service, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if cfg.Base == "" {
		cfg.Base = "USD"
	}
	if cfg.Quote == "" {
		cfg.Quote = "KRW"
	}

	var fetch FetchFunc
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderStatic:
		return NewStaticRate(cfg.Rate, logger)
	case ProviderFrankfurter:
		fetch = FrankfurterFetch(cfg.APIURL, cfg.Base, cfg.Quote, cfg.Timeout)
	case ProviderExchangeRateAPI:
		fetch = ExchangeRateAPIFetch(cfg.APIURL, cfg.Base, cfg.Quote, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	polled := NewPolledRate(PolledConfig{
		Name:     strings.ToLower(cfg.Provider),
		Interval: cfg.RefreshInterval,
		MaxAge:   cfg.MaxAge,
	}, fetch, logger)

	if cfg.Rate.Sign() <= 0 {
		return polled, nil
	}
	static, err := NewStaticRate(cfg.Rate, logger)
	if err != nil {
		return nil, err
	}
	return NewFallbackRate(polled, static, logger), nil
}
