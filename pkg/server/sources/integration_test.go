package sources_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/config"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	_ "github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/cex" // Register CEX sources
)

// TestRealCEXSources queries every enabled exchange of the example
// configuration over the network.
func TestRealCEXSources(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg, err := config.Load("../../../config/config.example.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	for _, sourceCfg := range cfg.EnabledSources() {
		if sourceCfg.Type != "cex" {
			continue
		}

		t.Run(sourceCfg.Name, func(t *testing.T) {
			source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config)
			if err != nil {
				t.Fatalf("Failed to create source: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := source.Start(ctx); err != nil {
				t.Fatalf("Failed to start: %v", err)
			}
			defer func() { _ = source.Stop() }()

			quote, err := source.Quote(ctx, "BTC")
			if err != nil {
				t.Fatalf("Failed to get BTC quote: %v", err)
			}
			t.Logf("%s BTC: %s %s", sourceCfg.Name, quote.Price.String(), quote.Currency)

			if quote.Price.LessThanOrEqual(decimal.Zero) {
				t.Errorf("Invalid price: %s (must be > 0)", quote.Price.String())
			}
			if quote.Source != source.Name() {
				t.Errorf("Wrong source: got %s, want %s", quote.Source, source.Name())
			}
			if time.Since(quote.ObservedAt) > 10*time.Minute {
				t.Errorf("Stale quote: %s", quote.ObservedAt)
			}

			// BTC trades far above 10k in either currency.
			if quote.Price.LessThan(decimal.NewFromInt(10000)) {
				t.Errorf("BTC price out of expected range: %s", quote.Price.String())
			}

			all, err := source.AllQuotes(ctx)
			if err != nil {
				t.Fatalf("Failed to get all quotes: %v", err)
			}
			if len(all) == 0 {
				t.Error("No quotes returned")
			}

			if !source.IsHealthy() {
				t.Error("Source should be healthy after successful fetch")
			}
		})
	}
}
