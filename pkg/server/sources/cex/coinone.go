package cex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const coinoneBaseURL = "https://api.coinone.co.kr"

// CoinoneSource fetches KRW prices from the Coinone public v2 API.
type CoinoneSource struct {
	*sources.BaseSource
	apiURL string
}

// CoinoneTicker is one entry of ticker_new.
type CoinoneTicker struct {
	QuoteCurrency  string `json:"quote_currency"`
	TargetCurrency string `json:"target_currency"`
	Timestamp      int64  `json:"timestamp"`
	High           string `json:"high"`
	Low            string `json:"low"`
	First          string `json:"first"`
	Last           string `json:"last"`
	TargetVolume   string `json:"target_volume"`
}

// CoinoneResponse is the ticker_new envelope.
type CoinoneResponse struct {
	Result     string          `json:"result"`
	ErrorCode  string          `json:"error_code"`
	ServerTime int64           `json:"server_time"`
	Tickers    []CoinoneTicker `json:"tickers"`
}

// NewCoinoneSource creates a new Coinone source.
// Pairs map tickers to Coinone target currencies ("BTC": "btc").
func NewCoinoneSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "coinone"),
		sources.GetString(config, "display_name", "Coinone"),
		sources.RegionDomestic,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	return &CoinoneSource{
		BaseSource: base,
		apiURL:     strings.TrimRight(sources.GetString(config, "api_url", coinoneBaseURL), "/"),
	}, nil
}

// Quote returns the current KRW quote for symbol.
func (s *CoinoneSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	tickers, err := s.fetch(ctx, fmt.Sprintf("%s/public/v2/ticker_new/KRW/%s?additional_data=false", s.apiURL, market))
	if err != nil {
		return sources.Quote{}, err
	}
	for _, t := range tickers {
		if strings.EqualFold(t.TargetCurrency, market) {
			return s.toQuote(unified, t)
		}
	}
	return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, unified)
}

// AllQuotes returns quotes for every configured coin from one ticker listing.
func (s *CoinoneSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	tickers, err := s.fetch(ctx, s.apiURL+"/public/v2/ticker_new/KRW?additional_data=false")
	if err != nil {
		return nil, err
	}

	byTarget := make(map[string]CoinoneTicker, len(tickers))
	for _, t := range tickers {
		byTarget[strings.ToUpper(t.TargetCurrency)] = t
	}
	for _, unified := range s.Symbols() {
		t, ok := byTarget[strings.ToUpper(s.GetSourceSymbol(unified))]
		if !ok {
			continue
		}
		q, err := s.toQuote(unified, t)
		if err != nil {
			s.Logger().Warn("Skipping malformed ticker", "symbol", unified, "error", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (s *CoinoneSource) fetch(ctx context.Context, url string) ([]CoinoneTicker, error) {
	var resp CoinoneResponse
	if err := s.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("%w: error_code %s", sources.ErrAPIError, resp.ErrorCode)
	}
	return resp.Tickers, nil
}

func (s *CoinoneSource) toQuote(symbol string, t CoinoneTicker) (sources.Quote, error) {
	price, err := sources.ParseDecimal(t.Last)
	if err != nil {
		return sources.Quote{}, err
	}
	q := s.NewQuote(symbol, price, sources.MillisToTime(t.Timestamp))
	q.High24h = sources.ParseNullDecimal(t.High)
	q.Low24h = sources.ParseNullDecimal(t.Low)
	q.Volume24h = sources.ParseNullDecimal(t.TargetVolume)
	q.ChangeRate = sources.ChangePercent(sources.ParseNullDecimal(t.First), price)
	q.Status = sources.StatusNormal
	return q, nil
}
