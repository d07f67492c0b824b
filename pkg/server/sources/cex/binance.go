package cex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const (
	binanceBaseURL = "https://api.binance.com"

	// binanceInvalidSymbol is the API error code for unknown symbols.
	binanceInvalidSymbol = "-1121"
)

// BinanceSource fetches USDT prices from the Binance spot REST API and can
// rank markets by 24h quote volume.
type BinanceSource struct {
	*sources.BaseSource
	apiURL     string
	quoteAsset string
}

// Binance24hrTicker represents the /api/v3/ticker/24hr payload.
type Binance24hrTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
	CloseTime          int64  `json:"closeTime"`
}

// NewBinanceSource creates a new Binance source.
// Pairs map tickers to Binance symbols ("BTC": "BTCUSDT").
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "binance"),
		sources.GetString(config, "display_name", "Binance"),
		sources.RegionForeign,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	return &BinanceSource{
		BaseSource: base,
		apiURL:     strings.TrimRight(sources.GetString(config, "api_url", binanceBaseURL), "/"),
		quoteAsset: strings.ToUpper(sources.GetString(config, "quote_asset", "USDT")),
	}, nil
}

// Quote returns the current quote for symbol.
func (s *BinanceSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	var t Binance24hrTicker
	if err := s.get(ctx, s.apiURL+"/api/v3/ticker/24hr?symbol="+url.QueryEscape(market), &t); err != nil {
		return sources.Quote{}, err
	}
	return s.toQuote(unified, t)
}

// AllQuotes returns quotes for every configured pair in one request.
func (s *BinanceSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	pairs := s.GetAllPairs()
	markets := make([]string, 0, len(pairs))
	for _, m := range pairs {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	encoded, err := json.Marshal(markets)
	if err != nil {
		return nil, err
	}

	var tickers []Binance24hrTicker
	if err := s.get(ctx, s.apiURL+"/api/v3/ticker/24hr?symbols="+url.QueryEscape(string(encoded)), &tickers); err != nil {
		return nil, err
	}

	for _, t := range tickers {
		unified := s.GetUnifiedSymbol(t.Symbol)
		if unified == "" {
			continue
		}
		q, err := s.toQuote(unified, t)
		if err != nil {
			s.Logger().Warn("Skipping malformed ticker", "symbol", t.Symbol, "error", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// TopQuotes returns the limit markets quoted in the configured quote asset
// with the highest 24h quote volume. Markets outside the pair map are
// included under their base ticker.
func (s *BinanceSource) TopQuotes(ctx context.Context, limit int) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("top", "", start, err) }()

	var tickers []Binance24hrTicker
	if err := s.get(ctx, s.apiURL+"/api/v3/ticker/24hr", &tickers); err != nil {
		return nil, err
	}

	type ranked struct {
		ticker Binance24hrTicker
		volume decimal.Decimal
	}
	candidates := make([]ranked, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, s.quoteAsset) || t.Symbol == s.quoteAsset {
			continue
		}
		vol, err := sources.ParseDecimal(t.QuoteVolume)
		if err != nil {
			continue
		}
		candidates = append(candidates, ranked{ticker: t, volume: vol})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].volume.GreaterThan(candidates[j].volume)
	})

	for _, c := range candidates {
		if limit > 0 && len(quotes) >= limit {
			break
		}
		unified := s.GetUnifiedSymbol(c.ticker.Symbol)
		if unified == "" {
			unified = strings.TrimSuffix(c.ticker.Symbol, s.quoteAsset)
		}
		q, err := s.toQuote(unified, c.ticker)
		if err != nil || q.Price.Sign() <= 0 {
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (s *BinanceSource) get(ctx context.Context, url string, out interface{}) error {
	err := s.GetJSON(ctx, url, out)
	var se *sources.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest && strings.Contains(se.Body, binanceInvalidSymbol) {
		return fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, se.Body)
	}
	return err
}

func (s *BinanceSource) toQuote(symbol string, t Binance24hrTicker) (sources.Quote, error) {
	price, err := sources.ParseDecimal(t.LastPrice)
	if err != nil {
		return sources.Quote{}, err
	}
	q := s.NewQuote(symbol, price, sources.MillisToTime(t.CloseTime))
	q.High24h = sources.ParseNullDecimal(t.HighPrice)
	q.Low24h = sources.ParseNullDecimal(t.LowPrice)
	q.Volume24h = sources.ParseNullDecimal(t.Volume)
	q.ChangeRate = sources.ParseNullDecimal(t.PriceChangePercent)
	q.Status = sources.StatusNormal
	return q, nil
}
