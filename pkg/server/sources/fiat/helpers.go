package fiat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/version"
)

// RetryPolicy bounds FetchWithRetries.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used by the polled providers.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:     5,
	InitialBackoff: time.Second,
	MaxBackoff:     2 * time.Minute,
}

// FetchWithRetries runs fetchFunc with exponential backoff until it
// succeeds, the retries run out, ctx ends or stopChan closes.
func FetchWithRetries(
	ctx context.Context,
	logger *logging.Logger,
	stopChan <-chan struct{},
	policy RetryPolicy,
	fetchFunc func(context.Context) error,
) error {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		// Check if we should stop
		select {
		case <-stopChan:
			return fmt.Errorf("%w", ErrSourceStoppedRetry)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fetchFunc(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		logger.Warn("Fetch attempt failed",
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"error", err,
		)

		if attempt == policy.MaxRetries {
			break
		}

		// #nosec G115 -- attempt is always positive (1 to MaxRetries)
		backoff := policy.InitialBackoff * time.Duration(1<<uint(attempt-1))
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}

		logger.Debug("Retrying after backoff",
			"backoff", backoff,
			"attempt", attempt+1,
		)

		select {
		case <-time.After(backoff):
		case <-stopChan:
			return fmt.Errorf("%w", ErrSourceStoppedBackoff)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Error("Failed after all retries", "error", lastErr, "retries", policy.MaxRetries)
	return lastErr
}

// getJSON fetches url into out, mapping HTTP failures to the source sentinels.
func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &sources.StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", sources.ErrInvalidResponse, err)
	}
	return nil
}
