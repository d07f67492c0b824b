package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
)

// State is the phase of the watch loop.
type State string

const (
	StateIdle      State = "idle"
	StateComputing State = "computing"
	StateWaiting   State = "waiting"
	StateStopped   State = "stopped"
)

// PremiumSource computes premiums. The engine satisfies it.
type PremiumSource interface {
	Premium(ctx context.Context, symbol string) (premium.Result, error)
}

// Config contains watcher configuration.
type Config struct {
	Symbols  []string
	Interval time.Duration
	// CycleTimeout bounds one pass over all symbols; zero means Interval.
	CycleTimeout time.Duration
}

// Summary counts the outcomes of one cycle.
type Summary struct {
	Computed     int
	Insufficient int
	Failed       int
}

// Watcher drives periodic premium computations.
type Watcher struct {
	source       PremiumSource
	symbols      []string
	interval     time.Duration
	cycleTimeout time.Duration
	logger       zerolog.Logger

	mu      sync.RWMutex
	state   State
	last    Summary
	lastRun time.Time
}

// New creates a watcher over the normalized, de-duplicated symbols.
func New(cfg Config, source PremiumSource, logger zerolog.Logger) (*Watcher, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, cfg.Interval)
	}

	seen := make(map[string]bool, len(cfg.Symbols))
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		sym := sources.NormalizeSymbol(s)
		if err := sources.ValidateSymbolFormat(sym); err != nil {
			return nil, fmt.Errorf("watcher symbol: %w", err)
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	timeout := cfg.CycleTimeout
	if timeout <= 0 {
		timeout = cfg.Interval
	}

	return &Watcher{
		source:       source,
		symbols:      symbols,
		interval:     cfg.Interval,
		cycleTimeout: timeout,
		logger:       logger.With().Str("component", "watcher").Logger(),
		state:        StateIdle,
	}, nil
}

// Start runs a cycle at once and then every interval until ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info().
		Strs("symbols", w.symbols).
		Dur("interval", w.interval).
		Msg("Starting premium watcher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.setState(StateStopped)
			w.logger.Info().Msg("Premium watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle computes the premium of every symbol once. Errors are logged
// and counted; they never stop the loop.
func (w *Watcher) RunCycle(ctx context.Context) Summary {
	w.setState(StateComputing)
	cycleCtx, cancel := context.WithTimeout(ctx, w.cycleTimeout)
	defer cancel()

	var sum Summary
	for _, sym := range w.symbols {
		if cycleCtx.Err() != nil {
			break
		}
		res, err := w.source.Premium(cycleCtx, sym)
		switch {
		case err == nil:
			sum.Computed++
			w.logger.Debug().
				Str("symbol", sym).
				Str("rate", res.PremiumRate.String()).
				Msg("Premium refreshed")
		case errors.Is(err, premium.ErrInsufficientData):
			sum.Insufficient++
			w.logger.Debug().Err(err).Str("symbol", sym).Msg("Premium not available")
		default:
			sum.Failed++
			w.logger.Error().Err(err).Str("symbol", sym).Msg("Premium computation failed")
		}
	}

	w.mu.Lock()
	w.last = sum
	w.lastRun = time.Now()
	w.state = StateWaiting
	w.mu.Unlock()

	w.logger.Info().
		Int("computed", sum.Computed).
		Int("insufficient", sum.Insufficient).
		Int("failed", sum.Failed).
		Msg("Watch cycle completed")
	return sum
}

// State returns the current loop state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// LastCycle returns the summary and time of the last completed cycle.
func (w *Watcher) LastCycle() (Summary, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.lastRun
}

// Symbols returns the watched symbols.
func (w *Watcher) Symbols() []string {
	out := make([]string, len(w.symbols))
	copy(out, w.symbols)
	return out
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}
