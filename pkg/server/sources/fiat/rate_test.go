package fiat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

var fastRetry = RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

func TestStaticRate(t *testing.T) {
	r, err := NewStaticRate(decimal.NewFromInt(1350), logging.NewNoopLogger())
	require.NoError(t, err)

	rate, err := r.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1350)))

	_, err = NewStaticRate(decimal.Zero, nil)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestFrankfurterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "KRW", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2024-01-02","rates":{"KRW":1310.25}}`))
	}))
	defer srv.Close()

	rate, err := FrankfurterFetch(srv.URL, "usd", "krw", time.Second)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1310.25", rate.String())

	_, err = FrankfurterFetch(srv.URL, "USD", "JPY", time.Second)(context.Background())
	assert.ErrorIs(t, err, ErrCurrencyMissing)
}

func TestExchangeRateAPIFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v6/latest/USD" {
			_, _ = w.Write([]byte(`{"result":"error","error-type":"unsupported-code"}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"KRW":1349.9,"EUR":0.92}}`))
	}))
	defer srv.Close()

	rate, err := ExchangeRateAPIFetch(srv.URL, "USD", "KRW", time.Second)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1349.9", rate.String())

	_, err = ExchangeRateAPIFetch(srv.URL, "XXX", "KRW", time.Second)(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestPolledRateRetriesAndStaleness(t *testing.T) {
	var calls int32
	fetch := func(context.Context) (decimal.Decimal, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return decimal.Zero, errors.New("boom")
		}
		return decimal.NewFromInt(1350), nil
	}

	p := NewPolledRate(PolledConfig{Name: "test", Interval: time.Hour, MaxAge: time.Minute, Retry: fastRetry}, fetch, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	rate, err := p.Rate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1350)))

	now = now.Add(2 * time.Minute)
	_, err = p.Rate(ctx)
	assert.ErrorIs(t, err, ErrRateStale)
}

func TestPolledRateFetchesOnDemand(t *testing.T) {
	p := NewPolledRate(PolledConfig{Name: "lazy", Retry: fastRetry}, func(context.Context) (decimal.Decimal, error) {
		return decimal.NewFromInt(1300), nil
	}, nil)

	rate, err := p.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1300)))
	assert.False(t, p.UpdatedAt().IsZero())
}

func TestPolledRateRejectsNonPositive(t *testing.T) {
	p := NewPolledRate(PolledConfig{Name: "zero", Retry: fastRetry}, func(context.Context) (decimal.Decimal, error) {
		return decimal.Zero, nil
	}, nil)

	_, err := p.Rate(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestFallbackRate(t *testing.T) {
	failing := NewPolledRate(PolledConfig{Name: "down", Retry: fastRetry}, func(context.Context) (decimal.Decimal, error) {
		return decimal.Zero, &sources.StatusError{Code: http.StatusServiceUnavailable}
	}, nil)
	static, err := NewStaticRate(decimal.NewFromInt(1400), nil)
	require.NoError(t, err)

	f := NewFallbackRate(failing, static, nil)
	rate, err := f.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1400)))
}

func TestFetchWithRetriesStops(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	err := FetchWithRetries(context.Background(), logging.NewNoopLogger(), stop, fastRetry, func(context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrSourceStoppedRetry)
}

func TestBuild(t *testing.T) {
	svc, err := Build(Config{Provider: "static", Rate: decimal.NewFromInt(1350)}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticRate{}, svc)

	svc, err = Build(Config{Provider: "frankfurter"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &PolledRate{}, svc)

	svc, err = Build(Config{Provider: "exchangerate_api", Rate: decimal.NewFromInt(1350)}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FallbackRate{}, svc)

	_, err = Build(Config{Provider: "fixer"}, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = Build(Config{Provider: "static"}, nil)
	assert.ErrorIs(t, err, ErrInvalidRate)
}
