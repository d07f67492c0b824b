package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/version"
)

// DefaultTimeout bounds every HTTP call a source makes, independent of the
// per-task timeout the aggregator applies.
const DefaultTimeout = 10 * time.Second

// BaseSource provides common functionality for all price sources
type BaseSource struct {
	name        string
	displayName string
	region      Region
	symbols     []string
	pairs       map[string]string // unified ticker -> source-specific market id
	lastUpdate  time.Time
	updateMu    sync.RWMutex
	healthy     bool
	healthMu    sync.RWMutex
	client      *http.Client
	stopChan    chan struct{}
	stopOnce    sync.Once
	logger      *logging.Logger
}

// NewBaseSource creates a new base source with pair mappings.
// pairs: map of unified ticker (e.g., "BTC") -> source-specific market (e.g., "KRW-BTC").
// Sources start out healthy; the flag flips with each call outcome.
func NewBaseSource(name, displayName string, region Region, pairs map[string]string, timeout time.Duration, logger *logging.Logger) *BaseSource {
	symbols := make([]string, 0, len(pairs))
	for unified := range pairs {
		symbols = append(symbols, unified)
	}
	sort.Strings(symbols)

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	b := &BaseSource{
		name:        name,
		displayName: displayName,
		region:      region,
		symbols:     symbols,
		pairs:       pairs,
		healthy:     true,
		client:      &http.Client{Timeout: timeout},
		stopChan:    make(chan struct{}),
		logger:      logger.With("source", name),
	}
	metrics.RecordSourceHealth(name, string(region), true)
	return b
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// DisplayName returns the human readable source name
func (b *BaseSource) DisplayName() string {
	return b.displayName
}

// Region returns the source region
func (b *BaseSource) Region() Region {
	return b.region
}

// Symbols returns the symbols this source provides
func (b *BaseSource) Symbols() []string {
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	changed := b.healthy != healthy
	b.healthy = healthy
	b.healthMu.Unlock()

	if changed {
		b.logger.Info("Source health changed", "healthy", healthy)
	}
	metrics.RecordSourceHealth(b.name, string(b.region), healthy)
}

// LastUpdate returns the time of the last successful response
func (b *BaseSource) LastUpdate() time.Time {
	b.updateMu.RLock()
	defer b.updateMu.RUnlock()
	return b.lastUpdate
}

// SetLastUpdate sets the last update time
func (b *BaseSource) SetLastUpdate(t time.Time) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.lastUpdate = t
}

// Start is a no-op for request/response sources.
func (b *BaseSource) Start(_ context.Context) error {
	return nil
}

// Stop closes the stop channel.
func (b *BaseSource) Stop() error {
	b.Close()
	return nil
}

// TopQuotes is unsupported unless a source overrides it.
func (b *BaseSource) TopQuotes(_ context.Context, _ int) ([]Quote, error) {
	return nil, &SourceError{Source: b.name, Op: "top", Err: ErrRankingUnsupported}
}

// StopChan returns the stop channel
func (b *BaseSource) StopChan() <-chan struct{} {
	return b.stopChan
}

// Close closes the stop channel
func (b *BaseSource) Close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// GetSourceSymbol converts unified symbol to source-specific symbol
// Returns empty string if not found
func (b *BaseSource) GetSourceSymbol(unifiedSymbol string) string {
	return b.pairs[unifiedSymbol]
}

// GetUnifiedSymbol finds the unified symbol for a source-specific symbol
// Returns empty string if not found
func (b *BaseSource) GetUnifiedSymbol(sourceSymbol string) string {
	for unified, source := range b.pairs {
		if source == sourceSymbol {
			return unified
		}
	}
	return ""
}

// GetAllPairs returns a copy of the pair mappings
func (b *BaseSource) GetAllPairs() map[string]string {
	pairs := make(map[string]string, len(b.pairs))
	for k, v := range b.pairs {
		pairs[k] = v
	}
	return pairs
}

// ResolveSymbol normalizes symbol and returns it with the source market id.
func (b *BaseSource) ResolveSymbol(symbol string) (string, string, error) {
	unified := NormalizeSymbol(symbol)
	market, ok := b.pairs[unified]
	if !ok {
		return unified, "", fmt.Errorf("%w: %s", ErrSymbolNotFound, unified)
	}
	return unified, market, nil
}

// NewQuote returns a quote attributed to this source in its region's
// currency with every optional field absent and status UNKNOWN.
func (b *BaseSource) NewQuote(symbol string, price decimal.Decimal, observedAt time.Time) Quote {
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	return Quote{
		Symbol:      symbol,
		Source:      b.name,
		DisplayName: b.displayName,
		Region:      b.region,
		Price:       price,
		Currency:    b.region.Currency(),
		Status:      StatusUnknown,
		ObservedAt:  observedAt,
	}
}

// Track records the outcome of one source call (metrics, health, last
// update) and converts err into a *SourceError. A not-found answer is a
// valid response and leaves the source healthy.
func (b *BaseSource) Track(op, symbol string, start time.Time, err error) error {
	status := "ok"
	switch {
	case err == nil:
		b.SetHealthy(true)
		b.SetLastUpdate(time.Now())
	case IsNotFound(err):
		status = "not_found"
	default:
		status = "error"
		b.SetHealthy(false)
	}
	metrics.RecordSourceRequest(b.name, status, time.Since(start))

	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Source: b.name, Op: op, Symbol: symbol, Err: err}
}

// StatusError carries the HTTP status of a failed source request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// Unwrap maps the status onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusNotFound:
		return ErrSymbolNotFound
	default:
		return ErrUnexpectedStatus
	}
}

// GetJSON performs a GET request and decodes the JSON body into out.
func (b *BaseSource) GetJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			b.logger.Warn("Rate limit exceeded", "url", url)
		}
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	return nil
}
