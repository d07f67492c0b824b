package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const (
	bithumbBaseURL = "https://api.bithumb.com"

	bithumbStatusOK = "0000"
)

// BithumbSource fetches KRW prices from the Bithumb public API.
type BithumbSource struct {
	*sources.BaseSource
	apiURL string
}

// BithumbTicker is the per-coin payload of /public/ticker.
type BithumbTicker struct {
	OpeningPrice    string `json:"opening_price"`
	ClosingPrice    string `json:"closing_price"`
	MinPrice        string `json:"min_price"`
	MaxPrice        string `json:"max_price"`
	UnitsTraded24H  string `json:"units_traded_24H"`
	FluctateRate24H string `json:"fluctate_rate_24H"`
	Date            string `json:"date"`
}

// BithumbResponse wraps every Bithumb public answer.
type BithumbResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewBithumbSource creates a new Bithumb source.
// Pairs map tickers to the Bithumb order currency ("BTC": "BTC").
func NewBithumbSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "bithumb"),
		sources.GetString(config, "display_name", "Bithumb"),
		sources.RegionDomestic,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	return &BithumbSource{
		BaseSource: base,
		apiURL:     strings.TrimRight(sources.GetString(config, "api_url", bithumbBaseURL), "/"),
	}, nil
}

// Quote returns the current KRW quote for symbol.
func (s *BithumbSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	data, err := s.get(ctx, fmt.Sprintf("%s/public/ticker/%s_KRW", s.apiURL, market))
	if err != nil {
		return sources.Quote{}, err
	}

	var t BithumbTicker
	if err := json.Unmarshal(data, &t); err != nil {
		return sources.Quote{}, fmt.Errorf("%w: ticker: %v", sources.ErrInvalidResponse, err)
	}
	return s.toQuote(unified, t)
}

// AllQuotes returns quotes for every configured coin from the ALL_KRW ticker.
func (s *BithumbSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	data, err := s.get(ctx, s.apiURL+"/public/ticker/ALL_KRW")
	if err != nil {
		return nil, err
	}

	// data holds one object per coin plus a "date" string.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: ticker map: %v", sources.ErrInvalidResponse, err)
	}

	for _, unified := range s.Symbols() {
		entry, ok := raw[s.GetSourceSymbol(unified)]
		if !ok {
			continue
		}
		var t BithumbTicker
		if err := json.Unmarshal(entry, &t); err != nil {
			s.Logger().Warn("Skipping malformed ticker", "symbol", unified, "error", err)
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

func (s *BithumbSource) get(ctx context.Context, url string) (json.RawMessage, error) {
	var resp BithumbResponse
	if err := s.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	switch {
	case resp.Status == bithumbStatusOK:
		return resp.Data, nil
	case resp.Status == "5500" || resp.Status == "5600":
		// Bithumb answers unknown coins with a parameter error.
		return nil, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, resp.Message)
	default:
		return nil, fmt.Errorf("%w: status %s: %s", sources.ErrAPIError, resp.Status, resp.Message)
	}
}

func (s *BithumbSource) toQuote(symbol string, t BithumbTicker) (sources.Quote, error) {
	price, err := sources.ParseDecimal(t.ClosingPrice)
	if err != nil {
		return sources.Quote{}, err
	}

	var observed time.Time
	if ms, err := sources.ParseDecimal(t.Date); err == nil {
		observed = sources.MillisToTime(ms.IntPart())
	}

	q := s.NewQuote(symbol, price, observed)
	q.High24h = sources.ParseNullDecimal(t.MaxPrice)
	q.Low24h = sources.ParseNullDecimal(t.MinPrice)
	q.Volume24h = sources.ParseNullDecimal(t.UnitsTraded24H)
	q.ChangeRate = sources.ParseNullDecimal(t.FluctateRate24H)
	if !q.ChangeRate.Valid {
		q.ChangeRate = sources.ChangePercent(sources.ParseNullDecimal(t.OpeningPrice), price)
	}
	q.Status = sources.StatusNormal
	return q, nil
}
