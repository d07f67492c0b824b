package cex

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const (
	bybitBaseURL = "https://api.bybit.com"

	// bybitNotSupported is the retCode Bybit answers for unknown symbols.
	bybitNotSupported = 10001
)

// BybitSource fetches spot prices from the Bybit v5 REST API.
type BybitSource struct {
	*sources.BaseSource
	apiURL string
}

// BybitTicker is one spot ticker.
type BybitTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Price24hPcnt string `json:"price24hPcnt"`
}

// BybitResponse represents the API response.
type BybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string        `json:"category"`
		List     []BybitTicker `json:"list"`
	} `json:"result"`
	Time int64 `json:"time"`
}

// NewBybitSource creates a new Bybit REST source.
// Pairs map tickers to Bybit symbols ("BTC": "BTCUSDT").
func NewBybitSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "bybit"),
		sources.GetString(config, "display_name", "Bybit"),
		sources.RegionForeign,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	return &BybitSource{
		BaseSource: base,
		apiURL:     strings.TrimRight(sources.GetString(config, "api_url", bybitBaseURL), "/"),
	}, nil
}

// Quote returns the current quote for symbol.
func (s *BybitSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	resp, err := s.fetch(ctx, "&symbol="+url.QueryEscape(market))
	if err != nil {
		return sources.Quote{}, err
	}
	for _, t := range resp.Result.List {
		if t.Symbol == market {
			return s.toQuote(unified, t, resp.Time)
		}
	}
	return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, unified)
}

// AllQuotes returns quotes for every configured pair from the full spot listing.
func (s *BybitSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	resp, err := s.fetch(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, t := range resp.Result.List {
		unified := s.GetUnifiedSymbol(t.Symbol)
		if unified == "" {
			continue
		}
		q, err := s.toQuote(unified, t, resp.Time)
		if err != nil {
			s.Logger().Warn("Skipping malformed ticker", "symbol", t.Symbol, "error", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (s *BybitSource) fetch(ctx context.Context, query string) (*BybitResponse, error) {
	var resp BybitResponse
	if err := s.GetJSON(ctx, s.apiURL+"/v5/market/tickers?category=spot"+query, &resp); err != nil {
		return nil, err
	}
	switch resp.RetCode {
	case 0:
		return &resp, nil
	case bybitNotSupported:
		return nil, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, resp.RetMsg)
	default:
		return nil, fmt.Errorf("%w: retCode %d: %s", sources.ErrAPIError, resp.RetCode, resp.RetMsg)
	}
}

func (s *BybitSource) toQuote(symbol string, t BybitTicker, ts int64) (sources.Quote, error) {
	price, err := sources.ParseDecimal(t.LastPrice)
	if err != nil {
		return sources.Quote{}, err
	}
	q := s.NewQuote(symbol, price, sources.MillisToTime(ts))
	q.High24h = sources.ParseNullDecimal(t.HighPrice24h)
	q.Low24h = sources.ParseNullDecimal(t.LowPrice24h)
	q.Volume24h = sources.ParseNullDecimal(t.Volume24h)
	q.ChangeRate = sources.FractionToPercent(sources.ParseNullDecimal(t.Price24hPcnt))
	q.Status = sources.StatusNormal
	return q, nil
}
