package cex

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const (
	coingeckoBaseURL         = "https://api.coingecko.com/api/v3"
	coingeckoFreeMinInterval = 15 * time.Second // Free API: ~4 calls/minute to stay under limit
	coingeckoProMinInterval  = 2 * time.Second  // Pro API: ~30 calls/minute
	coingeckoMaxPerPage      = 250
)

// CoinGeckoSource fetches USD prices from the CoinGecko aggregator. Because
// of the tight rate limit it fetches all configured coins at once and reuses
// that snapshot for minInterval.
type CoinGeckoSource struct {
	*sources.BaseSource

	apiURL      string
	apiKey      string
	vsCurrency  string
	minInterval time.Duration

	snapMu    sync.Mutex
	snapshot  map[string]sources.Quote // by unified symbol
	fetchedAt time.Time
}

// CoinGeckoMarket is one entry of /coins/markets.
type CoinGeckoMarket struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	High24h                  decimal.NullDecimal `json:"high_24h"`
	Low24h                   decimal.NullDecimal `json:"low_24h"`
	TotalVolume              decimal.NullDecimal `json:"total_volume"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	MarketCapRank            int                 `json:"market_cap_rank"`
	LastUpdated              time.Time           `json:"last_updated"`
}

// NewCoinGeckoSource creates a new CoinGecko source.
// Pairs map tickers to CoinGecko coin ids ("BTC": "bitcoin").
func NewCoinGeckoSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiKey := sources.GetString(config, "api_key", "")

	// Set minimum interval based on API key presence
	minInterval := coingeckoFreeMinInterval
	if apiKey != "" {
		minInterval = coingeckoProMinInterval
	}
	minInterval = sources.GetDuration(config, "min_interval", minInterval)

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "coingecko"),
		sources.GetString(config, "display_name", "CoinGecko"),
		sources.RegionForeign,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	base.Logger().Info("CoinGecko source configured",
		"min_interval", minInterval,
		"has_api_key", apiKey != "")

	return &CoinGeckoSource{
		BaseSource:  base,
		apiURL:      strings.TrimRight(sources.GetString(config, "api_url", coingeckoBaseURL), "/"),
		apiKey:      apiKey,
		vsCurrency:  strings.ToLower(sources.GetString(config, "vs_currency", "usd")),
		minInterval: minInterval,
	}, nil
}

// Quote returns the current quote for symbol from the shared snapshot.
func (s *CoinGeckoSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, _, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	snap, err := s.refresh(ctx)
	if err != nil {
		return sources.Quote{}, err
	}
	q, ok := snap[unified]
	if !ok {
		return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, unified)
	}
	return q, nil
}

// AllQuotes returns the snapshot for every configured coin.
func (s *CoinGeckoSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	snap, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	for _, unified := range s.Symbols() {
		if q, ok := snap[unified]; ok {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

// TopQuotes returns the limit coins with the highest market cap.
func (s *CoinGeckoSource) TopQuotes(ctx context.Context, limit int) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("top", "", start, err) }()

	if limit <= 0 || limit > coingeckoMaxPerPage {
		limit = coingeckoMaxPerPage
	}
	params := url.Values{}
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("page", "1")

	markets, err := s.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(markets, func(i, j int) bool {
		ri, rj := markets[i].MarketCapRank, markets[j].MarketCapRank
		if ri == 0 || rj == 0 {
			return rj == 0 && ri != 0
		}
		return ri < rj
	})

	for _, m := range markets {
		unified := s.GetUnifiedSymbol(m.ID)
		if unified == "" {
			unified = strings.ToUpper(m.Symbol)
		}
		if q, ok := s.toQuote(unified, m); ok {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

func (s *CoinGeckoSource) refresh(ctx context.Context) (map[string]sources.Quote, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	if s.snapshot != nil && time.Since(s.fetchedAt) < s.minInterval {
		return s.snapshot, nil
	}

	pairs := s.GetAllPairs()
	ids := make([]string, 0, len(pairs))
	for _, id := range pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("per_page", strconv.Itoa(coingeckoMaxPerPage))

	markets, err := s.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]sources.Quote, len(markets))
	for _, m := range markets {
		unified := s.GetUnifiedSymbol(m.ID)
		if unified == "" {
			continue
		}
		if q, ok := s.toQuote(unified, m); ok {
			snap[unified] = q
		}
	}
	s.snapshot = snap
	s.fetchedAt = time.Now()
	return snap, nil
}

func (s *CoinGeckoSource) fetch(ctx context.Context, params url.Values) ([]CoinGeckoMarket, error) {
	params.Set("vs_currency", s.vsCurrency)
	if s.apiKey != "" {
		params.Set("x_cg_pro_api_key", s.apiKey)
	}

	var markets []CoinGeckoMarket
	if err := s.GetJSON(ctx, s.apiURL+"/coins/markets?"+params.Encode(), &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

func (s *CoinGeckoSource) toQuote(symbol string, m CoinGeckoMarket) (sources.Quote, bool) {
	if !m.CurrentPrice.Valid {
		return sources.Quote{}, false
	}
	q := s.NewQuote(symbol, m.CurrentPrice.Decimal, m.LastUpdated)
	q.Currency = strings.ToUpper(s.vsCurrency)
	q.High24h = m.High24h
	q.Low24h = m.Low24h
	q.Volume24h = m.TotalVolume
	q.ChangeRate = m.PriceChangePercentage24h
	q.Status = sources.StatusNormal
	return q, true
}
