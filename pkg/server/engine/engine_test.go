package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/aggregator"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/cache"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/comparison"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/notify"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/fiat"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/workerpool"
)

type countingSource struct {
	*sources.BaseSource
	price string
	err   error
	calls int32
}

func newSource(name string, region sources.Region, price string) *countingSource {
	return &countingSource{
		BaseSource: sources.NewBaseSource(name, name, region, map[string]string{"BTC": "BTC", "ETH": "ETH"}, time.Second, nil),
		price:      price,
	}
}

func (s *countingSource) Quote(_ context.Context, symbol string) (sources.Quote, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return sources.Quote{}, s.err
	}
	return s.NewQuote(symbol, decimal.RequireFromString(s.price), time.Time{}), nil
}

func (s *countingSource) AllQuotes(context.Context) ([]sources.Quote, error) { return nil, nil }

func (s *countingSource) callCount() int32 { return atomic.LoadInt32(&s.calls) }

type rateFunc func() (decimal.Decimal, error)

func (f rateFunc) Rate(context.Context) (decimal.Decimal, error) { return f() }

func fixedRate(v string) fiat.RateProvider {
	return rateFunc(func() (decimal.Decimal, error) { return decimal.RequireFromString(v), nil })
}

type recordingNotifier struct {
	mu      sync.Mutex
	symbols []string
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, res premium.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols = append(r.symbols, res.Symbol)
	return nil
}

func (r *recordingNotifier) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.symbols...)
}

func newEngine(t *testing.T, rates fiat.RateProvider, notifier *recordingNotifier, list ...sources.Source) *Engine {
	t.Helper()
	reg, err := sources.NewRegistry(list...)
	require.NoError(t, err)
	pool := workerpool.New(4, 16, nil)
	t.Cleanup(pool.Close)

	agg := aggregator.New(reg, pool, time.Second, nil)
	calc, err := premium.New(agg, rates, premium.Config{ForeignReference: "binance", Scale: premium.DefaultScale}, nil)
	require.NoError(t, err)

	c := cache.New(cache.NewMemoryBackend(time.Hour), nil)
	t.Cleanup(func() { _ = c.Close() })

	var n notify.Notifier
	if notifier != nil {
		n = notifier
	}
	e := New(agg, comparison.New(comparison.DefaultSpreadScale), calc, rates, c, n, Config{TTL: DefaultTTLs}, nil)
	t.Cleanup(e.Close)
	return e
}

func TestListPricesIsCached(t *testing.T) {
	upbit := newSource("upbit", sources.RegionDomestic, "100000")
	binance := newSource("binance", sources.RegionForeign, "70")
	e := newEngine(t, fixedRate("1350"), nil, upbit, binance)
	ctx := context.Background()

	set, err := e.ListPrices(ctx, "krw-btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", set.Symbol)
	assert.Equal(t, 2, set.Len())

	_, err = e.ListPrices(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, int32(1), upbit.callCount(), "normalized symbols share a cache key")

	domestic, err := e.ListRegionPrices(ctx, "BTC", sources.RegionDomestic)
	require.NoError(t, err)
	assert.Equal(t, 1, domestic.Len())
	assert.Equal(t, int32(1), binance.callCount(), "region scope skips foreign sources")
}

func TestListPricesEmptyIsNotCached(t *testing.T) {
	down := newSource("upbit", sources.RegionDomestic, "1")
	down.err = errors.New("down")
	e := newEngine(t, fixedRate("1350"), nil, down)

	for i := 0; i < 2; i++ {
		set, err := e.ListPrices(context.Background(), "BTC")
		require.NoError(t, err)
		assert.True(t, set.Empty())
	}
	assert.Equal(t, int32(2), down.callCount())
}

func TestListSourcePrices(t *testing.T) {
	e := newEngine(t, fixedRate("1350"), nil,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("binance", sources.RegionForeign, "70"),
	)

	set, err := e.ListSourcePrices(context.Background(), "BTC", "UPBIT")
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, "upbit", set.Quotes[0].Source)

	_, err = e.ListSourcePrices(context.Background(), "BTC", "kraken")
	assert.ErrorIs(t, err, aggregator.ErrUnknownSource)
}

func TestCompareConvertsForeignQuotes(t *testing.T) {
	e := newEngine(t, fixedRate("1350"), nil,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("bithumb", sources.RegionDomestic, "99000"),
		newSource("binance", sources.RegionForeign, "70"),
	)

	res, err := e.Compare(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalSources)
	assert.Equal(t, 2, res.DomesticCount)
	assert.Equal(t, 1, res.ForeignCount)
	assert.Equal(t, "upbit", res.Highest.Source)
	assert.Equal(t, "binance", res.Lowest.Source)
	assert.True(t, res.Lowest.Price.Equal(decimal.NewFromInt(94500)))
	assert.True(t, res.PriceSpread.Equal(decimal.NewFromInt(5500)))
	assert.True(t, res.PriceSpreadRate.Equal(decimal.RequireFromString("5.82")))
}

func TestCompareWithoutRateUsesDomesticQuotes(t *testing.T) {
	noRate := rateFunc(func() (decimal.Decimal, error) { return decimal.Zero, fiat.ErrRateUnavailable })
	e := newEngine(t, noRate, nil,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("binance", sources.RegionForeign, "70"),
	)

	res, err := e.Compare(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSources)
	assert.Equal(t, 0, res.ForeignCount)
}

func TestCompareWithoutRateIsNotCached(t *testing.T) {
	var available atomic.Bool
	rates := rateFunc(func() (decimal.Decimal, error) {
		if !available.Load() {
			return decimal.Zero, fiat.ErrRateUnavailable
		}
		return decimal.NewFromInt(1350), nil
	})
	e := newEngine(t, rates, nil,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("binance", sources.RegionForeign, "70"),
	)
	ctx := context.Background()

	reduced, err := e.Compare(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1, reduced.TotalSources)

	available.Store(true)
	full, err := e.Compare(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 2, full.TotalSources)
	assert.Equal(t, 1, full.ForeignCount)

	available.Store(false)
	cached, err := e.Compare(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 2, cached.TotalSources, "complete comparisons are cached")
}

func TestCompareNoData(t *testing.T) {
	down := newSource("upbit", sources.RegionDomestic, "1")
	down.err = errors.New("down")
	e := newEngine(t, fixedRate("1350"), nil, down)

	_, err := e.Compare(context.Background(), "BTC")
	assert.ErrorIs(t, err, ErrNoData)

	_, err = e.Compare(context.Background(), "B-T-C")
	assert.ErrorIs(t, err, aggregator.ErrInvalidSymbol)
}

func TestPremiumNotifiesOncePerComputation(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newEngine(t, fixedRate("1350"), notifier,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("binance", sources.RegionForeign, "70"),
	)
	ctx := context.Background()

	res, err := e.Premium(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, res.PremiumRate.Equal(decimal.RequireFromString("5.82")))

	cached, err := e.Premium(ctx, "btc")
	require.NoError(t, err)
	assert.True(t, cached.PremiumAmount.Equal(res.PremiumAmount))

	e.Wait()
	assert.Equal(t, []string{"BTC"}, notifier.seen())
}

func TestCloseStopsHandOffs(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newEngine(t, fixedRate("1350"), notifier,
		newSource("upbit", sources.RegionDomestic, "100000"),
		newSource("binance", sources.RegionForeign, "70"),
	)
	ctx := context.Background()

	_, err := e.Premium(ctx, "BTC")
	require.NoError(t, err)
	e.Close()
	assert.Equal(t, []string{"BTC"}, notifier.seen(), "pending hand-offs finish before Close returns")

	res, err := e.Premium(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "ETH", res.Symbol)
	e.Wait()
	assert.Equal(t, []string{"BTC"}, notifier.seen())

	e.Close()
}

func TestPremiumInsufficientData(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newEngine(t, fixedRate("1350"), notifier,
		newSource("upbit", sources.RegionDomestic, "100000"),
	)

	_, err := e.Premium(context.Background(), "BTC")
	require.ErrorIs(t, err, premium.ErrInsufficientData)
	e.Wait()
	assert.Empty(t, notifier.seen())
}

func TestTopQuotesAndIntrospection(t *testing.T) {
	upbit := newSource("upbit", sources.RegionDomestic, "100000")
	e := newEngine(t, fixedRate("1350"), nil, upbit, newSource("binance", sources.RegionForeign, "70"))

	_, err := e.TopQuotes(context.Background(), "upbit", 10)
	assert.ErrorIs(t, err, sources.ErrRankingUnsupported)
	_, err = e.TopQuotes(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, aggregator.ErrUnknownSource)

	assert.Equal(t, []string{"BTC", "ETH"}, e.SupportedSymbols())

	upbit.SetHealthy(false)
	assert.Equal(t, map[string]bool{"upbit": false, "binance": true}, e.SourceHealth())
}
