package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	ws "github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/websocket"
)

const (
	upbitBaseURL      = "https://api.upbit.com"
	upbitWSURL        = "wss://api.upbit.com/websocket/v1"
	upbitStreamMaxAge = 10 * time.Second
)

// UpbitSource fetches KRW prices from Upbit. With use_websocket enabled it
// also keeps a ticker stream open and serves fresh streamed quotes without
// a REST round trip.
type UpbitSource struct {
	*sources.BaseSource
	apiURL       string
	wsURL        string
	useWebSocket bool
	maxAge       time.Duration
	wsClient     *ws.Client

	streamMu sync.RWMutex
	streamed map[string]sources.Quote
}

// UpbitTicker is one entry of the /v1/ticker response and of the ticker stream.
type UpbitTicker struct {
	Type              string              `json:"type"`
	Market            string              `json:"market"`
	Code              string              `json:"code"`
	TradePrice        decimal.NullDecimal `json:"trade_price"`
	HighPrice         decimal.NullDecimal `json:"high_price"`
	LowPrice          decimal.NullDecimal `json:"low_price"`
	AccTradeVolume24h decimal.NullDecimal `json:"acc_trade_volume_24h"`
	SignedChangeRate  decimal.NullDecimal `json:"signed_change_rate"`
	MarketState       string              `json:"market_state"`
	Timestamp         int64               `json:"timestamp"`
}

// NewUpbitSource creates a new Upbit source
func NewUpbitSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	base := sources.NewBaseSource(
		sources.GetString(config, "name", "upbit"),
		sources.GetString(config, "display_name", "Upbit"),
		sources.RegionDomestic,
		pairs,
		sources.GetDuration(config, "timeout", sources.DefaultTimeout),
		logger,
	)

	s := &UpbitSource{
		BaseSource:   base,
		apiURL:       strings.TrimRight(sources.GetString(config, "api_url", upbitBaseURL), "/"),
		wsURL:        sources.GetString(config, "websocket_url", upbitWSURL),
		useWebSocket: sources.GetBool(config, "use_websocket", false),
		maxAge:       sources.GetDuration(config, "stream_max_age", upbitStreamMaxAge),
		streamed:     make(map[string]sources.Quote),
	}

	if s.useWebSocket {
		s.wsClient = ws.NewClient(ws.Config{
			URL:    s.wsURL,
			Logger: s.Logger().ZerologLogger(),
		})
		s.wsClient.SetHandlers(s.subscription, s.handleWSMessage, s.handleWSDisconnect)
		s.Logger().Info("Upbit WebSocket mode enabled")
	}

	return s, nil
}

// Start opens the ticker stream when enabled.
func (s *UpbitSource) Start(ctx context.Context) error {
	if s.wsClient == nil {
		return nil
	}
	go func() {
		if err := s.wsClient.Run(ctx); err != nil {
			s.Logger().Error("Upbit stream stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes the stream.
func (s *UpbitSource) Stop() error {
	if s.wsClient != nil {
		_ = s.wsClient.Close()
	}
	s.Close()
	return nil
}

// Quote returns the current KRW quote for symbol.
func (s *UpbitSource) Quote(ctx context.Context, symbol string) (q sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("quote", symbol, start, err) }()

	unified, market, err := s.ResolveSymbol(symbol)
	if err != nil {
		return sources.Quote{}, err
	}

	if cached, ok := s.streamedQuote(unified); ok {
		return cached, nil
	}

	quotes, err := s.fetch(ctx, []string{market})
	if err != nil {
		return sources.Quote{}, err
	}
	if len(quotes) == 0 {
		return sources.Quote{}, fmt.Errorf("%w: %s", sources.ErrSymbolNotFound, unified)
	}
	return quotes[0], nil
}

// AllQuotes returns quotes for every configured market in one request.
func (s *UpbitSource) AllQuotes(ctx context.Context) (quotes []sources.Quote, err error) {
	start := time.Now()
	defer func() { err = s.Track("all", "", start, err) }()

	pairs := s.GetAllPairs()
	markets := make([]string, 0, len(pairs))
	for _, m := range pairs {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	return s.fetch(ctx, markets)
}

func (s *UpbitSource) fetch(ctx context.Context, markets []string) ([]sources.Quote, error) {
	endpoint := fmt.Sprintf("%s/v1/ticker?markets=%s", s.apiURL, url.QueryEscape(strings.Join(markets, ",")))

	var tickers []UpbitTicker
	if err := s.GetJSON(ctx, endpoint, &tickers); err != nil {
		return nil, err
	}

	quotes := make([]sources.Quote, 0, len(tickers))
	var invalid error
	for _, t := range tickers {
		q, ok, err := s.toQuote(t)
		if err != nil {
			s.Logger().Warn("Skipping ticker without a usable price", "market", t.Market, "error", err)
			invalid = err
			continue
		}
		if ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 && invalid != nil {
		return nil, invalid
	}
	return quotes, nil
}

// toQuote converts a ticker of a configured market. ok is false for
// markets this source does not map; a missing or non-positive trade price
// is an invalid response.
func (s *UpbitSource) toQuote(t UpbitTicker) (q sources.Quote, ok bool, err error) {
	market := t.Market
	if market == "" {
		market = t.Code
	}
	unified := s.GetUnifiedSymbol(market)
	if unified == "" {
		return sources.Quote{}, false, nil
	}
	if !t.TradePrice.Valid || t.TradePrice.Decimal.Sign() <= 0 {
		return sources.Quote{}, false, fmt.Errorf("%w: %s trade_price missing or not positive", sources.ErrInvalidResponse, market)
	}

	q = s.NewQuote(unified, t.TradePrice.Decimal, sources.MillisToTime(t.Timestamp))
	q.High24h = t.HighPrice
	q.Low24h = t.LowPrice
	q.Volume24h = t.AccTradeVolume24h
	q.ChangeRate = sources.FractionToPercent(t.SignedChangeRate)
	q.Status = upbitStatus(t.MarketState)
	return q, true, nil
}

func upbitStatus(state string) sources.MarketStatus {
	switch strings.ToUpper(state) {
	case "ACTIVE":
		return sources.StatusNormal
	case "DELISTED":
		return sources.StatusDelisted
	case "PREVIEW", "SUSPENDED":
		return sources.StatusHalted
	default:
		return sources.StatusUnknown
	}
}

// Streaming

func (s *UpbitSource) streamedQuote(symbol string) (sources.Quote, bool) {
	if s.wsClient == nil {
		return sources.Quote{}, false
	}
	s.streamMu.RLock()
	defer s.streamMu.RUnlock()
	q, ok := s.streamed[symbol]
	if !ok || time.Since(q.ObservedAt) > s.maxAge {
		return sources.Quote{}, false
	}
	return q, true
}

// subscription builds the Upbit ticker subscription frame.
func (s *UpbitSource) subscription() interface{} {
	pairs := s.GetAllPairs()
	codes := make([]string, 0, len(pairs))
	for _, m := range pairs {
		codes = append(codes, m)
	}
	sort.Strings(codes)
	return []map[string]interface{}{
		{"ticket": fmt.Sprintf("%s-%d", s.Name(), time.Now().UnixNano())},
		{"type": "ticker", "codes": codes},
		{"format": "DEFAULT"},
	}
}

func (s *UpbitSource) handleWSMessage(message []byte) {
	var t UpbitTicker
	if err := json.Unmarshal(message, &t); err != nil {
		s.Logger().Debug("Ignoring stream frame", "error", err)
		return
	}
	if t.Type != "" && t.Type != "ticker" {
		return
	}
	q, ok, err := s.toQuote(t)
	if err != nil || !ok {
		return
	}

	s.streamMu.Lock()
	s.streamed[q.Symbol] = q
	s.streamMu.Unlock()
	s.SetLastUpdate(time.Now())
}

func (s *UpbitSource) handleWSDisconnect(err error) {
	s.Logger().Warn("Upbit stream disconnected", "error", err)
	// Streamed quotes go stale; REST takes over until the stream is back.
	s.streamMu.Lock()
	s.streamed = make(map[string]sources.Quote)
	s.streamMu.Unlock()
}
