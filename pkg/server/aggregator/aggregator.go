package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/workerpool"
)

// DefaultSourceTimeout bounds a single source call inside a fan-out.
const DefaultSourceTimeout = 3 * time.Second

// Aggregator collects quotes for one symbol from a scope of sources.
type Aggregator struct {
	registry *sources.Registry
	pool     *workerpool.Pool
	timeout  time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

// New creates an aggregator that runs source calls on pool.
func New(registry *sources.Registry, pool *workerpool.Pool, sourceTimeout time.Duration, logger *logging.Logger) *Aggregator {
	if sourceTimeout <= 0 {
		sourceTimeout = DefaultSourceTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Aggregator{
		registry: registry,
		pool:     pool,
		timeout:  sourceTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Registry returns the registry the aggregator reads from.
func (a *Aggregator) Registry() *sources.Registry {
	return a.registry
}

type outcome struct {
	index  int
	source string
	quote  sources.Quote
	err    error
}

// Collect queries every source in scope concurrently and returns the quotes
// of those that answered, ordered by price descending with ties kept in
// registry order. A failing, slow or panicking source contributes nothing,
// and neither does a quote without a positive price.
// If ctx ends before all sources answered, the quotes received so far are
// returned.
func (a *Aggregator) Collect(ctx context.Context, symbol string, scope Scope) (PriceSet, error) {
	start := a.now()
	sym := sources.NormalizeSymbol(symbol)
	if err := sources.ValidateSymbolFormat(sym); err != nil {
		return PriceSet{}, fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}

	targets, err := a.targets(scope)
	if err != nil {
		return PriceSet{}, err
	}

	set := PriceSet{Symbol: sym, CollectedAt: start}
	results := make(chan outcome, len(targets))

	submitted := 0
	for i, src := range targets {
		if err := a.pool.Submit(ctx, a.task(ctx, i, src, sym, results)); err != nil {
			a.logger.Warn("Could not schedule source call", "source", src.Name(), "symbol", sym, "error", err)
			continue
		}
		submitted++
	}

	collected := make([]outcome, 0, submitted)
join:
	for received := 0; received < submitted; received++ {
		select {
		case o := <-results:
			if o.err != nil {
				a.logFailure(sym, o)
				continue
			}
			collected = append(collected, o)
		case <-ctx.Done():
			a.logger.Warn("Fan-out cancelled, returning partial result",
				"symbol", sym,
				"scope", scope.String(),
				"received", received,
				"expected", submitted)
			break join
		}
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})
	set.Quotes = make([]sources.Quote, 0, len(collected))
	for _, o := range collected {
		set.Quotes = append(set.Quotes, o.quote)
	}
	sort.SliceStable(set.Quotes, func(i, j int) bool {
		return set.Quotes[i].Price.GreaterThan(set.Quotes[j].Price)
	})

	metrics.RecordFanOut(scope.Kind(), set.Len(), a.now().Sub(start))
	a.logger.Debug("Collected quotes",
		"symbol", sym,
		"scope", scope.String(),
		"sources", len(targets),
		"survivors", set.Len())
	return set, nil
}

func (a *Aggregator) targets(scope Scope) ([]sources.Source, error) {
	switch scope.kind {
	case scopeRegion:
		return a.registry.ByRegion(scope.region), nil
	case scopeSource:
		src, ok := a.registry.Get(scope.source)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, scope.source)
		}
		return []sources.Source{src}, nil
	default:
		return a.registry.All(), nil
	}
}

// task wraps one source call. It always reports exactly one outcome; the
// results channel is buffered for every task so the send never blocks.
func (a *Aggregator) task(ctx context.Context, index int, src sources.Source, symbol string, results chan<- outcome) workerpool.Task {
	return func() {
		o := outcome{index: index, source: src.Name()}
		defer func() {
			if r := recover(); r != nil {
				o.err = fmt.Errorf("%w: %v", ErrSourcePanic, r)
			}
			results <- o
		}()

		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		q, err := src.Quote(callCtx, symbol)
		if err != nil {
			o.err = err
			return
		}
		if q.Price.Sign() <= 0 {
			o.err = fmt.Errorf("%w: non-positive price %s", ErrInvalidQuote, q.Price)
			return
		}
		q.Symbol = symbol
		q.Source = src.Name()
		q.Region = src.Region()
		if q.DisplayName == "" {
			q.DisplayName = src.DisplayName()
		}
		o.quote = q
	}
}

func (a *Aggregator) logFailure(symbol string, o outcome) {
	if sources.IsNotFound(o.err) {
		a.logger.Debug("Source does not list symbol", "source", o.source, "symbol", symbol)
		return
	}
	a.logger.Warn("Source call failed", "source", o.source, "symbol", symbol, "error", o.err)
}
