package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

func createTestPremium(symbol string, computedAt time.Time, rate string) premium.Result {
	return premium.Result{
		Symbol: symbol,
		DomesticPrices: map[string]sources.Quote{
			"upbit": {Symbol: symbol, Source: "upbit", Region: sources.RegionDomestic, Price: decimal.NewFromInt(100000), Currency: "KRW"},
		},
		ForeignPrices: map[string]sources.Quote{
			"binance": {Symbol: symbol, Source: "binance", Region: sources.RegionForeign, Price: decimal.NewFromInt(70), Currency: "USD"},
		},
		PremiumRate:           decimal.RequireFromString(rate),
		PremiumAmount:         decimal.NewFromInt(5500),
		BaseForeignSource:     "binance",
		ForeignReferencePrice: decimal.NewFromInt(70),
		ExchangeRate:          decimal.NewFromInt(1350),
		ConvertedForeignPrice: decimal.NewFromInt(94500),
		HighestDomesticSource: "upbit",
		HighestDomesticPrice:  decimal.NewFromInt(100000),
		LowestDomesticSource:  "upbit",
		LowestDomesticPrice:   decimal.NewFromInt(100000),
		ComputedAt:            computedAt,
	}
}

func TestPremiumStore_InsertAndRecent(t *testing.T) {
	pool := setupTestDB(t)
	store := NewPremiumStore(pool)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, createTestPremium("BTC", base, "5.82")))
	require.NoError(t, store.Insert(ctx, createTestPremium("BTC", base.Add(time.Minute), "6.01")))
	require.NoError(t, store.Insert(ctx, createTestPremium("ETH", base, "1.10")))

	records, err := store.Recent(ctx, "btc", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	newest := records[0]
	assert.True(t, newest.PremiumRate.Equal(decimal.RequireFromString("6.01")))
	assert.True(t, newest.ComputedAt.Equal(base.Add(time.Minute)))
	assert.True(t, newest.ConvertedForeignPrice.Equal(decimal.NewFromInt(94500)))
	assert.Equal(t, "binance", newest.BaseForeignSource)
	require.Contains(t, newest.DomesticPrices, "upbit")
	assert.True(t, newest.DomesticPrices["upbit"].Price.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, sources.RegionForeign, newest.ForeignPrices["binance"].Region)
	assert.NotZero(t, newest.ID)
	assert.False(t, newest.RecordedAt.IsZero())

	limited, err := store.Recent(ctx, "BTC", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPremiumStore_RecentUnknownSymbol(t *testing.T) {
	pool := setupTestDB(t)
	records, err := NewPremiumStore(pool).Recent(context.Background(), "DOGE", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}
