// Package fiat provides the USD/KRW exchange rate used to convert foreign prices.
package fiat

import "errors"

var (
	// ErrRateUnavailable indicates no rate has been fetched yet.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	// ErrRateStale indicates the last fetched rate is older than the allowed age.
	ErrRateStale = errors.New("exchange rate is stale")
	// ErrInvalidRate indicates a zero, negative or malformed rate.
	ErrInvalidRate = errors.New("invalid exchange rate")
	// ErrCurrencyMissing indicates the quote currency was absent from the response.
	ErrCurrencyMissing = errors.New("currency missing from response")
	// ErrUnknownProvider indicates an unsupported fx provider name.
	ErrUnknownProvider = errors.New("unknown fx provider")
	// ErrSourceStoppedRetry indicates that the provider stopped during retry.
	ErrSourceStoppedRetry = errors.New("source stopped during retry")
	// ErrSourceStoppedBackoff indicates that the provider stopped during backoff.
	ErrSourceStoppedBackoff = errors.New("source stopped during backoff")
)
