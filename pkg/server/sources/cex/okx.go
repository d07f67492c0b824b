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
	okxBaseURL = "https://www.okx.com"

	// okxInstrumentMissing is the OKX code for an unknown instrument id.
	okxInstrumentMissing = "51001"
)

// OKXSource fetches spot prices from the OKX v5 REST API.
type OKXSource struct {
	*sources.BaseSource
	apiURL string
}

// OKXTicker is one market ticker.
type OKXTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	Ts      string `json:"ts"`
}

// OKXResponse represents the API response.
type OKXResponse struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data []OKXTicker `json:"data"`
}

// NewOKXSource creates a new OKX REST source.
// Pairs map tickers to OKX instrument ids ("BTC": "BTC-USDT").
func NewOKXSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "okx"),
		sources.GetString(config, "display_name", "OKX"),
		sources.RegionForeign,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	return &OKXSource{
		BaseSource: base,
		apiURL:     strings.TrimRight(sources.GetString(config, "api_url", okxBaseURL), "/"),
	}, nil
}

// Quote returns the current quote for symbol.
func (s *OKXSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	tickers, err := s.fetch(ctx, s.apiURL+"/api/v5/market/ticker?instId="+url.QueryEscape(market))
	if err != nil {
		return sources.Quote{}, err
	}
	for _, t := range tickers {
		if t.InstID == market {
			return s.toQuote(unified, t)
		}
	}
	return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, unified)
}

// AllQuotes returns quotes for every configured pair from the spot listing.
func (s *OKXSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	tickers, err := s.fetch(ctx, s.apiURL+"/api/v5/market/tickers?instType=SPOT")
	if err != nil {
		return nil, err
	}
	for _, t := range tickers {
		unified := s.GetUnifiedSymbol(t.InstID)
		if unified == "" {
			continue
		}
		q, err := s.toQuote(unified, t)
		if err != nil {
			s.Logger().Warn("Skipping malformed ticker", "symbol", t.InstID, "error", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (s *OKXSource) fetch(ctx context.Context, url string) ([]OKXTicker, error) {
	var resp OKXResponse
	if err := s.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	switch resp.Code {
	case "0":
		return resp.Data, nil
	case okxInstrumentMissing:
		return nil, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, resp.Msg)
	default:
		return nil, fmt.Errorf("%w: code %s: %s", sources.ErrAPIError, resp.Code, resp.Msg)
	}
}

func (s *OKXSource) toQuote(symbol string, t OKXTicker) (sources.Quote, error) {
	price, err := sources.ParseDecimal(t.Last)
	if err != nil {
		return sources.Quote{}, err
	}

	var observed time.Time
	if ms, err := sources.ParseDecimal(t.Ts); err == nil {
		observed = sources.MillisToTime(ms.IntPart())
	}

	q := s.NewQuote(symbol, price, observed)
	q.High24h = sources.ParseNullDecimal(t.High24h)
	q.Low24h = sources.ParseNullDecimal(t.Low24h)
	q.Volume24h = sources.ParseNullDecimal(t.Vol24h)
	q.ChangeRate = sources.ChangePercent(sources.ParseNullDecimal(t.Open24h), price)
	q.Status = sources.StatusNormal
	return q, nil
}
