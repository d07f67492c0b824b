package fiat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
)

// RateProvider returns the KRW value of one USD.
type RateProvider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Service is a RateProvider with a lifecycle.
type Service interface {
	RateProvider
	Start(ctx context.Context) error
	Stop()
}

// StaticRate is a configured constant rate.
type StaticRate struct {
	rate decimal.Decimal
}

// NewStaticRate creates a constant provider. The rate must be positive.
func NewStaticRate(rate decimal.Decimal, logger *logging.Logger) (*StaticRate, error) {
	if rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	if logger != nil {
		logger.Warn("Using a static exchange rate; premiums will drift from the market", "rate", rate.String())
	}
	return &StaticRate{rate: rate}, nil
}

// Rate returns the constant.
func (s *StaticRate) Rate(_ context.Context) (decimal.Decimal, error) {
	return s.rate, nil
}

// Start is a no-op.
func (s *StaticRate) Start(_ context.Context) error { return nil }

// Stop is a no-op.
func (s *StaticRate) Stop() {}

// FallbackRate asks primary first and fallback when primary fails.
type FallbackRate struct {
	primary  Service
	fallback Service
	logger   *logging.Logger
}

// NewFallbackRate chains two providers.
func NewFallbackRate(primary, fallback Service, logger *logging.Logger) *FallbackRate {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &FallbackRate{primary: primary, fallback: fallback, logger: logger}
}

// Rate returns the primary rate, or the fallback rate if the primary fails.
func (f *FallbackRate) Rate(ctx context.Context) (decimal.Decimal, error) {
	rate, err := f.primary.Rate(ctx)
	if err == nil {
		return rate, nil
	}
	f.logger.Warn("Primary exchange rate failed, using fallback", "error", err)
	return f.fallback.Rate(ctx)
}

// Start starts both providers.
func (f *FallbackRate) Start(ctx context.Context) error {
	if err := f.primary.Start(ctx); err != nil {
		return err
	}
	return f.fallback.Start(ctx)
}

// Stop stops both providers.
func (f *FallbackRate) Stop() {
	f.primary.Stop()
	f.fallback.Stop()
}

// FetchFunc fetches one rate.
type FetchFunc func(ctx context.Context) (decimal.Decimal, error)

// PolledRate keeps the last fetched rate and refreshes it on an interval.
// Rate never blocks on the network once a rate is held; a rate older than
// maxAge is reported as ErrRateStale.
type PolledRate struct {
	name     string
	fetch    FetchFunc
	interval time.Duration
	maxAge   time.Duration
	policy   RetryPolicy
	logger   *logging.Logger
	now      func() time.Time

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// PolledConfig configures a PolledRate.
type PolledConfig struct {
	Name     string
	Interval time.Duration
	MaxAge   time.Duration
	Retry    RetryPolicy
}

// NewPolledRate wraps fetch in a refresh loop.
func NewPolledRate(cfg PolledConfig, fetch FetchFunc, logger *logging.Logger) *PolledRate {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &PolledRate{
		name:     cfg.Name,
		fetch:    fetch,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		policy:   cfg.Retry,
		logger:   logger.With("fx", cfg.Name),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start performs an initial fetch and then refreshes in the background.
// A failed initial fetch is logged, not returned; Rate fetches on demand
// until a rate is held.
func (p *PolledRate) Start(ctx context.Context) error {
	p.logger.Info("Starting exchange rate provider", "interval", p.interval)

	if err := p.refreshWithRetries(ctx); err != nil {
		p.logger.Warn("Initial rate fetch failed after retries", "error", err)
	}

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = p.refreshWithRetries(ctx)
			}
		}
	}()
	return nil
}

// Stop ends the refresh loop.
func (p *PolledRate) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
}

// Rate returns the held rate.
func (p *PolledRate) Rate(ctx context.Context) (decimal.Decimal, error) {
	p.mu.RLock()
	rate, fetchedAt := p.rate, p.fetchedAt
	p.mu.RUnlock()

	if fetchedAt.IsZero() {
		if err := p.refresh(ctx); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, p.name, err)
		}
		p.mu.RLock()
		rate, fetchedAt = p.rate, p.fetchedAt
		p.mu.RUnlock()
	}

	if age := p.now().Sub(fetchedAt); age > p.maxAge {
		return decimal.Zero, fmt.Errorf("%w: %s is %s old", ErrRateStale, p.name, age.Round(time.Second))
	}
	return rate, nil
}

// UpdatedAt returns when the held rate was fetched.
func (p *PolledRate) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}

func (p *PolledRate) refreshWithRetries(ctx context.Context) error {
	return FetchWithRetries(ctx, p.logger, p.stopChan, p.policy, p.refresh)
}

func (p *PolledRate) refresh(ctx context.Context) error {
	rate, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}

	p.mu.Lock()
	p.rate = rate
	p.fetchedAt = p.now()
	p.mu.Unlock()

	p.logger.Debug("Updated exchange rate", "rate", rate.String())
	return nil
}
