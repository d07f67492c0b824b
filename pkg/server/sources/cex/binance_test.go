package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

const binanceAll = `[
	{"symbol":"BTCUSDT","lastPrice":"70000.00","highPrice":"71000","lowPrice":"69000","volume":"100","quoteVolume":"7000000","priceChangePercent":"1.5","closeTime":1700000000000},
	{"symbol":"ETHUSDT","lastPrice":"3500.00","highPrice":"3600","lowPrice":"3400","volume":"1000","quoteVolume":"3500000","priceChangePercent":"-0.5","closeTime":1700000000000},
	{"symbol":"SOLUSDT","lastPrice":"150.00","highPrice":"","lowPrice":"","volume":"","quoteVolume":"9000000","priceChangePercent":"","closeTime":1700000000000},
	{"symbol":"ETHBTC","lastPrice":"0.05","quoteVolume":"99999999","closeTime":1700000000000}
]`

func newBinanceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("symbol") == "BTCUSDT":
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"70000.00","highPrice":"71000","lowPrice":"69000","volume":"100","quoteVolume":"7000000","priceChangePercent":"1.5","closeTime":1700000000000}`))
		case q.Get("symbol") != "":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		default:
			_, _ = w.Write([]byte(binanceAll))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceQuote(t *testing.T) {
	srv := newBinanceServer(t)
	src, err := NewBinanceSource(pairsConfig(srv.URL, map[string]interface{}{
		"BTC":  "BTCUSDT",
		"LUNA": "LUNAUSDT",
	}))
	require.NoError(t, err)
	assert.Equal(t, sources.RegionForeign, src.Region())

	q, err := src.Quote(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(mustDecimal(t, "70000")))
	assert.True(t, q.ChangeRate.Decimal.Equal(mustDecimal(t, "1.5")))

	_, err = src.Quote(context.Background(), "LUNA")
	assert.True(t, sources.IsNotFound(err), "invalid symbol maps to not found: %v", err)
	assert.True(t, src.IsHealthy())
}

func TestBinanceAllQuotes(t *testing.T) {
	srv := newBinanceServer(t)
	src, err := NewBinanceSource(pairsConfig(srv.URL, map[string]interface{}{
		"BTC": "BTCUSDT",
		"ETH": "ETHUSDT",
	}))
	require.NoError(t, err)

	quotes, err := src.AllQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTC", quotes[0].Symbol)
	assert.Equal(t, "ETH", quotes[1].Symbol)
}

func TestBinanceTopQuotesByQuoteVolume(t *testing.T) {
	srv := newBinanceServer(t)
	src, err := NewBinanceSource(pairsConfig(srv.URL, map[string]interface{}{"BTC": "BTCUSDT"}))
	require.NoError(t, err)

	top, err := src.TopQuotes(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	// ETHBTC is skipped: not quoted in USDT.
	assert.Equal(t, "SOL", top[0].Symbol)
	assert.Equal(t, "BTC", top[1].Symbol)
	assert.False(t, top[0].High24h.Valid)
}
