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

func TestBybitSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		switch r.URL.Query().Get("symbol") {
		case "":
			_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
				{"symbol":"BTCUSDT","lastPrice":"70010","highPrice24h":"71000","lowPrice24h":"69000","volume24h":"10","price24hPcnt":"0.012"},
				{"symbol":"XRPUSDT","lastPrice":"0.6","highPrice24h":"0.7","lowPrice24h":"0.5","volume24h":"10","price24hPcnt":"-0.01"},
				{"symbol":"ETHUSDT","lastPrice":"3500","highPrice24h":"","lowPrice24h":"","volume24h":"","price24hPcnt":""}]},"time":1700000000000}`))
		case "BTCUSDT":
			_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
				{"symbol":"BTCUSDT","lastPrice":"70010","highPrice24h":"71000","lowPrice24h":"69000","volume24h":"10","price24hPcnt":"0.012"}]},"time":1700000000000}`))
		default:
			_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"Not supported symbols","result":{},"time":1700000000000}`))
		}
	}))
	defer srv.Close()

	src, err := NewBybitSource(pairsConfig(srv.URL, map[string]interface{}{
		"BTC":  "BTCUSDT",
		"ETH":  "ETHUSDT",
		"PEPE": "PEPEUSDT",
	}))
	require.NoError(t, err)

	q, err := src.Quote(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(mustDecimal(t, "70010")))
	assert.True(t, q.ChangeRate.Decimal.Equal(mustDecimal(t, "1.2")))

	_, err = src.Quote(context.Background(), "PEPE")
	assert.True(t, sources.IsNotFound(err))

	quotes, err := src.AllQuotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	for _, q := range quotes {
		assert.NotEqual(t, "XRP", q.Symbol, "unconfigured markets are skipped")
	}
}
