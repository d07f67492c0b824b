package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/aggregator"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/cache"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/comparison"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/notify"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/fiat"
)

// Cache kinds, used as key prefixes and metric labels.
const (
	KindPrices       = "prices"
	KindRegionPrices = "region_prices"
	KindComparison   = "comparison"
	KindPremium      = "premium"
	KindTop          = "top"
)

// DefaultNotifyTimeout bounds one notifier hand-off.
const DefaultNotifyTimeout = 5 * time.Second

// TTLs holds the cache lifetime of each result kind.
type TTLs struct {
	Prices       time.Duration
	RegionPrices time.Duration
	Comparison   time.Duration
	Premium      time.Duration
}

// DefaultTTLs are short enough for live prices.
var DefaultTTLs = TTLs{
	Prices:       10 * time.Second,
	RegionPrices: 10 * time.Second,
	Comparison:   30 * time.Second,
	Premium:      60 * time.Second,
}

// Config configures an Engine.
type Config struct {
	TTL           TTLs
	NotifyTimeout time.Duration
}

// Engine answers price questions from the cache or a fresh fan-out.
type Engine struct {
	agg        *aggregator.Aggregator
	comparator *comparison.Engine
	calculator *premium.Calculator
	rates      fiat.RateProvider
	cache      *cache.Cache
	notifier   notify.Notifier
	cfg        Config
	logger     *logging.Logger

	handOffs sync.Mutex // guards closed and wg.Add
	closed   bool
	wg       sync.WaitGroup
}

// New assembles an engine. notifier may be nil.
func New(
	agg *aggregator.Aggregator,
	comparator *comparison.Engine,
	calculator *premium.Calculator,
	rates fiat.RateProvider,
	c *cache.Cache,
	notifier notify.Notifier,
	cfg Config,
	logger *logging.Logger,
) *Engine {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	return &Engine{
		agg:        agg,
		comparator: comparator,
		calculator: calculator,
		rates:      rates,
		cache:      c,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
	}
}

// ListPrices returns the quotes of every source for symbol.
func (e *Engine) ListPrices(ctx context.Context, symbol string) (aggregator.PriceSet, error) {
	return e.collect(ctx, symbol, aggregator.All(), KindPrices, e.cfg.TTL.Prices)
}

// ListRegionPrices returns the quotes of one region's sources for symbol.
func (e *Engine) ListRegionPrices(ctx context.Context, symbol string, region sources.Region) (aggregator.PriceSet, error) {
	return e.collect(ctx, symbol, aggregator.Region(region), KindRegionPrices, e.cfg.TTL.RegionPrices)
}

// ListSourcePrices returns the quote of one named source for symbol. An
// unregistered name is an error, not an empty set.
func (e *Engine) ListSourcePrices(ctx context.Context, symbol, source string) (aggregator.PriceSet, error) {
	if _, ok := e.agg.Registry().Get(source); !ok {
		return aggregator.PriceSet{}, fmt.Errorf("%w: %s", aggregator.ErrUnknownSource, source)
	}
	return e.collect(ctx, symbol, aggregator.Source(source), KindPrices, e.cfg.TTL.Prices)
}

func (e *Engine) collect(ctx context.Context, symbol string, scope aggregator.Scope, kind string, ttl time.Duration) (aggregator.PriceSet, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return aggregator.PriceSet{}, err
	}
	key := kind + ":" + scope.String() + ":" + sym
	return cache.GetOrCompute(ctx, e.cache, kind, key, ttl, func(ctx context.Context) (aggregator.PriceSet, bool, error) {
		set, err := e.agg.Collect(ctx, sym, scope)
		return set, err == nil && !set.Empty(), err
	})
}

// Compare returns spread statistics for symbol across every source. Foreign
// quotes are converted to the domestic currency first; without an exchange
// rate only domestic quotes are compared. ErrNoData means nothing answered.
func (e *Engine) Compare(ctx context.Context, symbol string) (comparison.Result, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return comparison.Result{}, err
	}
	return cache.GetOrCompute(ctx, e.cache, KindComparison, KindComparison+":"+sym, e.cfg.TTL.Comparison,
		func(ctx context.Context) (comparison.Result, bool, error) {
			set, err := e.ListPrices(ctx, sym)
			if err != nil {
				return comparison.Result{}, false, err
			}
			set, complete := e.comparable(ctx, set)
			res, ok := e.comparator.Compare(set)
			if !ok {
				return comparison.Result{}, false, fmt.Errorf("%w: %s", ErrNoData, sym)
			}
			return res, complete, nil
		})
}

// comparable converts foreign quotes to the domestic currency. complete is
// false when foreign quotes had to be dropped for lack of a rate; such a
// reduced result is not cached.
func (e *Engine) comparable(ctx context.Context, set aggregator.PriceSet) (aggregator.PriceSet, bool) {
	if set.Count(sources.RegionForeign) == 0 {
		return set, true
	}
	rate, err := e.rates.Rate(ctx)
	if err != nil {
		e.logger.Warn("No exchange rate, comparing domestic quotes only", "symbol", set.Symbol, "error", err)
		return set.ByRegion(sources.RegionDomestic), false
	}
	return set.Converted(sources.RegionForeign.Currency(), sources.RegionDomestic.Currency(), rate), true
}

// Premium returns the domestic premium of symbol. A freshly computed
// result is handed to the notifier in the background.
func (e *Engine) Premium(ctx context.Context, symbol string) (premium.Result, error) {
	sym, err := normalize(symbol)
	if err != nil {
		return premium.Result{}, err
	}
	return cache.GetOrCompute(ctx, e.cache, KindPremium, KindPremium+":"+sym, e.cfg.TTL.Premium,
		func(ctx context.Context) (premium.Result, bool, error) {
			res, err := e.calculator.Calculate(ctx, sym)
			if err != nil {
				return premium.Result{}, false, err
			}
			e.handOff(res)
			return res, true, nil
		})
}

func (e *Engine) handOff(res premium.Result) {
	if e.notifier == nil {
		return
	}
	e.handOffs.Lock()
	if e.closed {
		e.handOffs.Unlock()
		e.logger.Debug("Engine closed, premium not handed off", "symbol", res.Symbol)
		return
	}
	e.wg.Add(1)
	e.handOffs.Unlock()
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NotifyTimeout)
		defer cancel()
		if err := notify.Deliver(ctx, e.notifier, res); err != nil {
			e.logger.Warn("Premium notification failed", "symbol", res.Symbol, "notifier", e.notifier.Name(), "error", err)
		}
	}()
}

// TopQuotes returns the ranked quotes of a source that supports ranking.
func (e *Engine) TopQuotes(ctx context.Context, source string, limit int) ([]sources.Quote, error) {
	src, ok := e.agg.Registry().Get(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", aggregator.ErrUnknownSource, source)
	}
	key := KindTop + ":" + src.Name() + ":" + strconv.Itoa(limit)
	return cache.GetOrCompute(ctx, e.cache, KindTop, key, e.cfg.TTL.Prices, func(ctx context.Context) ([]sources.Quote, bool, error) {
		quotes, err := src.TopQuotes(ctx, limit)
		return quotes, err == nil && len(quotes) > 0, err
	})
}

// SupportedSymbols returns the sorted union of every source's symbols.
func (e *Engine) SupportedSymbols() []string {
	return e.agg.Registry().SupportedSymbols()
}

// SourceHealth returns the health flag of every source by name.
func (e *Engine) SourceHealth() map[string]bool {
	health := make(map[string]bool)
	for _, src := range e.agg.Registry().All() {
		health[src.Name()] = src.IsHealthy()
	}
	return health
}

// Wait blocks until pending notifier hand-offs are done.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops handing premiums to the notifier and waits for the pending
// hand-offs. Premiums computed afterwards are still returned to callers.
func (e *Engine) Close() {
	e.handOffs.Lock()
	e.closed = true
	e.handOffs.Unlock()
	e.wg.Wait()
}

func normalize(symbol string) (string, error) {
	sym := sources.NormalizeSymbol(symbol)
	if err := sources.ValidateSymbolFormat(sym); err != nil {
		return "", fmt.Errorf("%w: %v", aggregator.ErrInvalidSymbol, err)
	}
	return sym, nil
}
