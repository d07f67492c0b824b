package fiat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	frankfurterBaseURL  = "https://api.frankfurter.app"
	exchangeRateAPIURL  = "https://open.er-api.com"
	defaultFetchTimeout = 5 * time.Second
)

type frankfurterResponse struct {
	Amount float64                    `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

type exchangeRateAPIResponse struct {
	Result             string                     `json:"result"`
	ErrorType          string                     `json:"error-type"`
	BaseCode           string                     `json:"base_code"`
	TimeLastUpdateUnix int64                      `json:"time_last_update_unix"`
	Rates              map[string]decimal.Decimal `json:"rates"`
}

// FrankfurterFetch returns a FetchFunc reading base→quote from the
// Frankfurter API (ECB reference rates, no API key).
// https://www.frankfurter.app/docs/
func FrankfurterFetch(apiURL, base, quote string, timeout time.Duration) FetchFunc {
	if apiURL == "" {
		apiURL = frankfurterBaseURL
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := &http.Client{Timeout: timeout}
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)

	endpoint := fmt.Sprintf("%s/latest?from=%s&to=%s",
		strings.TrimRight(apiURL, "/"), url.QueryEscape(base), url.QueryEscape(quote))

	return func(ctx context.Context) (decimal.Decimal, error) {
		var data frankfurterResponse
		if err := getJSON(ctx, client, endpoint, &data); err != nil {
			return decimal.Zero, err
		}
		rate, ok := data.Rates[quote]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrCurrencyMissing, quote)
		}
		return rate, nil
	}
}

// ExchangeRateAPIFetch returns a FetchFunc reading base→quote from the
// free ExchangeRate-API endpoint (no API key, daily updates).
func ExchangeRateAPIFetch(apiURL, base, quote string, timeout time.Duration) FetchFunc {
	if apiURL == "" {
		apiURL = exchangeRateAPIURL
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := &http.Client{Timeout: timeout}
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)

	endpoint := fmt.Sprintf("%s/v6/latest/%s", strings.TrimRight(apiURL, "/"), url.PathEscape(base))

	return func(ctx context.Context) (decimal.Decimal, error) {
		var data exchangeRateAPIResponse
		if err := getJSON(ctx, client, endpoint, &data); err != nil {
			return decimal.Zero, err
		}
		if data.Result != "success" {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrRateUnavailable, data.ErrorType)
		}
		rate, ok := data.Rates[quote]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrCurrencyMissing, quote)
		}
		return rate, nil
	}
}
