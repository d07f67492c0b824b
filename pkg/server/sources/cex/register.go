package cex

import (
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

func init() {
	// Domestic (KRW) exchanges
	sources.Register("cex.upbit", NewUpbitSource)
	sources.Register("cex.bithumb", NewBithumbSource)
	sources.Register("cex.coinone", NewCoinoneSource)

	// Foreign exchanges and aggregators
	sources.Register("cex.binance", NewBinanceSource)
	sources.Register("cex.bybit", NewBybitSource)
	sources.Register("cex.okx", NewOKXSource)
	sources.Register("cex.coingecko", NewCoinGeckoSource)
}
