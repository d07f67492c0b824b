package premium

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/aggregator"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/fiat"
)

// DefaultScale is the number of decimal places of PremiumRate.
const DefaultScale int32 = 2

var hundred = decimal.NewFromInt(100)

// State is the phase a premium computation is in. Nothing is kept between
// calls; every call starts over at StateRequested.
type State string

const (
	StateRequested        State = "REQUESTED"
	StateFetching         State = "FETCHING"
	StateComputed         State = "COMPUTED"
	StateInsufficientData State = "INSUFFICIENT_DATA"
)

// Result is one computed premium.
type Result struct {
	Symbol                string                   `json:"symbol"`
	DomesticPrices        map[string]sources.Quote `json:"domestic_prices"`
	ForeignPrices         map[string]sources.Quote `json:"foreign_prices"`
	PremiumRate           decimal.Decimal          `json:"premium_rate"`
	PremiumAmount         decimal.Decimal          `json:"premium_amount"`
	BaseForeignSource     string                   `json:"base_foreign_source"`
	ForeignReferencePrice decimal.Decimal          `json:"foreign_reference_price"`
	ExchangeRate          decimal.Decimal          `json:"exchange_rate"`
	ConvertedForeignPrice decimal.Decimal          `json:"converted_foreign_price"`
	HighestDomesticSource string                   `json:"highest_domestic_source"`
	HighestDomesticPrice  decimal.Decimal          `json:"highest_domestic_price"`
	LowestDomesticSource  string                   `json:"lowest_domestic_source"`
	LowestDomesticPrice   decimal.Decimal          `json:"lowest_domestic_price"`
	ComputedAt            time.Time                `json:"computed_at"`
}

// Config selects the foreign reference and the rounding scale.
type Config struct {
	ForeignReference string
	Scale            int32
}

// Calculator computes premiums from a fresh fan-out per call.
type Calculator struct {
	agg        *aggregator.Aggregator
	rates      fiat.RateProvider
	foreignRef string
	scale      int32
	logger     *logging.Logger
}

// New creates a calculator. The foreign reference must name a source; it is
// not required to be registered, a missing one just never yields a premium.
func New(agg *aggregator.Aggregator, rates fiat.RateProvider, cfg Config, logger *logging.Logger) (*Calculator, error) {
	ref := strings.TrimSpace(cfg.ForeignReference)
	if ref == "" {
		return nil, ErrNoForeignReference
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if cfg.Scale < 0 {
		cfg.Scale = DefaultScale
	}

	if agg != nil {
		src, ok := agg.Registry().Get(ref)
		switch {
		case !ok:
			logger.Warn("Foreign reference source is not registered", "source", ref)
		case src.Region() != sources.RegionForeign:
			logger.Warn("Foreign reference source is not a foreign venue", "source", ref, "region", src.Region())
		}
	}

	return &Calculator{
		agg:        agg,
		rates:      rates,
		foreignRef: ref,
		scale:      cfg.Scale,
		logger:     logger.With("component", "premium"),
	}, nil
}

// ForeignReference returns the configured reference source name.
func (c *Calculator) ForeignReference() string {
	return c.foreignRef
}

// Calculate fans out to every source once and computes the premium of
// symbol. It returns ErrInsufficientData when either region is empty, the
// foreign reference did not answer or no exchange rate is available.
func (c *Calculator) Calculate(ctx context.Context, symbol string) (Result, error) {
	c.logState(symbol, StateRequested)

	c.logState(symbol, StateFetching)
	set, err := c.agg.Collect(ctx, symbol, aggregator.All())
	if err != nil {
		return Result{}, err
	}

	var rate decimal.Decimal
	if set.Count(sources.RegionDomestic) > 0 {
		// the rate only matters once there is something to convert against
		rate, err = c.rates.Rate(ctx)
		if err != nil {
			c.insufficient(set.Symbol, "exchange rate unavailable", err)
			return Result{}, fmt.Errorf("%w: exchange rate: %v", ErrInsufficientData, err)
		}
	}

	res, err := c.Compute(set, rate)
	if err != nil {
		c.insufficient(set.Symbol, err.Error(), nil)
		return Result{}, err
	}

	c.logState(res.Symbol, StateComputed)
	rateFloat, _ := res.PremiumRate.Float64()
	metrics.RecordPremium(res.Symbol, rateFloat)
	c.logger.Debug("Premium computed",
		"symbol", res.Symbol,
		"rate", res.PremiumRate.String(),
		"amount", res.PremiumAmount.String(),
		"domestic_source", res.HighestDomesticSource,
		"foreign_source", res.BaseForeignSource)
	return res, nil
}

// Compute derives the premium from an already collected set and an
// exchange rate in domestic units per foreign unit. It performs no I/O.
func (c *Calculator) Compute(set aggregator.PriceSet, rate decimal.Decimal) (Result, error) {
	domestic := set.ByRegion(sources.RegionDomestic)
	foreign := set.ByRegion(sources.RegionForeign)
	if domestic.Empty() {
		return Result{}, fmt.Errorf("%w: no domestic quotes for %s", ErrInsufficientData, set.Symbol)
	}
	if foreign.Empty() {
		return Result{}, fmt.Errorf("%w: no foreign quotes for %s", ErrInsufficientData, set.Symbol)
	}
	reference, ok := foreign.BySource(c.foreignRef)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s did not quote %s", ErrInsufficientData, c.foreignRef, set.Symbol)
	}
	if rate.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: exchange rate %s", ErrInsufficientData, rate)
	}

	converted := reference.Price.Mul(rate)
	if converted.IsZero() {
		return Result{}, fmt.Errorf("%w: foreign reference price is zero", ErrInsufficientData)
	}

	// domestic is sorted by price descending, so the first entry is the highest
	highest, lowest := domestic.Quotes[0], domestic.Quotes[0]
	for _, q := range domestic.Quotes {
		if q.Price.LessThan(lowest.Price) {
			lowest = q
		}
	}

	amount := highest.Price.Sub(converted)
	return Result{
		Symbol:                set.Symbol,
		DomesticPrices:        bySource(domestic),
		ForeignPrices:         bySource(foreign),
		PremiumRate:           amount.Mul(hundred).DivRound(converted, c.scale),
		PremiumAmount:         amount,
		BaseForeignSource:     reference.Source,
		ForeignReferencePrice: reference.Price,
		ExchangeRate:          rate,
		ConvertedForeignPrice: converted,
		HighestDomesticSource: highest.Source,
		HighestDomesticPrice:  highest.Price,
		LowestDomesticSource:  lowest.Source,
		LowestDomesticPrice:   lowest.Price,
		ComputedAt:            set.CollectedAt,
	}, nil
}

func bySource(set aggregator.PriceSet) map[string]sources.Quote {
	out := make(map[string]sources.Quote, set.Len())
	for _, q := range set.Quotes {
		out[q.Source] = q
	}
	return out
}

func (c *Calculator) logState(symbol string, state State) {
	c.logger.Debug("Premium state", "symbol", symbol, "state", string(state))
}

func (c *Calculator) insufficient(symbol, reason string, err error) {
	metrics.RecordPremiumInsufficient(symbol)
	if err != nil {
		c.logger.Info("Premium not computed", "symbol", symbol, "state", string(StateInsufficientData), "reason", reason, "error", err)
		return
	}
	c.logger.Info("Premium not computed", "symbol", symbol, "state", string(StateInsufficientData), "reason", reason)
}
