package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/config"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/aggregator"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/cache"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/comparison"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/engine"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/notify"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/fiat"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/watcher"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/workerpool"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/storage/postgres"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/version"

	// Import sources to register them
	_ "github.com/ldj4245/coin-community-backend-sub000/pkg/server/sources/cex"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("coin-prices version %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting coin-prices", "version", version.Version)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, cfg, logger)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
		select {
		case err := <-errChan:
			if err != nil {
				logger.Error("Shutdown finished with error", "error", err)
			}
		case <-time.After(10 * time.Second):
			logger.Warn("Shutdown timed out")
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("Engine failed", "error", err)
			cancel()
			os.Exit(1)
		}
	}

	logger.Info("Shutdown complete")
}

// run wires every component and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	allSources := startSources(ctx, cfg, logger)
	defer func() {
		for _, src := range allSources {
			if err := src.Stop(); err != nil {
				logger.Warn("Failed to stop source", "source", src.Name(), "error", err)
			}
		}
	}()
	if len(allSources) == 0 {
		return errors.New("no sources available")
	}

	registry, err := sources.NewRegistry(allSources...)
	if err != nil {
		return fmt.Errorf("failed to build source registry: %w", err)
	}
	logger.Info("Source registry ready", "sources", registry.Names(), "symbols", len(registry.SupportedSymbols()))

	pool := workerpool.New(cfg.Engine.Workers, cfg.Engine.QueueSize, logger)
	defer pool.Close()

	agg := aggregator.New(registry, pool, cfg.Engine.SourceTimeout.ToDuration(), logger)

	fx := cfg.Premium.FX
	rates, err := fiat.Build(fiat.Config{
		Provider:        fx.Provider,
		Base:            fx.Base,
		Quote:           fx.Quote,
		Rate:            fx.Rate.Decimal,
		APIURL:          fx.APIURL,
		RefreshInterval: fx.RefreshInterval.ToDuration(),
		MaxAge:          fx.MaxAge.ToDuration(),
		Timeout:         fx.Timeout.ToDuration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create exchange rate provider: %w", err)
	}
	if err := rates.Start(ctx); err != nil {
		logger.Warn("Exchange rate provider did not start cleanly", "provider", fx.Provider, "error", err)
	}
	defer rates.Stop()

	calculator, err := premium.New(agg, rates, premium.Config{
		ForeignReference: cfg.Premium.ForeignReference,
		Scale:            cfg.Premium.Scale,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create premium calculator: %w", err)
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is not reachable yet", "addr", cfg.Redis.Addr, "error", err)
		}
		defer func() {
			_ = redisClient.Close()
		}()
	}

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		backend = cache.NewRedisBackend(redisClient, cfg.Redis.KeyPrefix, logger)
	default:
		backend = cache.NewMemoryBackend(cfg.Cache.JanitorInterval.ToDuration())
	}
	resultCache := cache.New(backend, logger)
	defer func() {
		_ = resultCache.Close()
	}()

	var store *postgres.PremiumStore
	if cfg.Notifier.Record {
		pgPool, err := postgres.NewPool(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("failed to open premium history store: %w", err)
		}
		defer pgPool.Close()
		store = postgres.NewPremiumStore(pgPool)
	}

	notifier := buildNotifier(cfg, redisClient, store, resultCache, logger)

	ttl := cfg.Cache.TTL
	eng := engine.New(agg, comparison.New(cfg.Engine.SpreadScale), calculator, rates, resultCache, notifier, engine.Config{
		TTL: engine.TTLs{
			Prices:       ttl.Prices.ToDuration(),
			RegionPrices: ttl.RegionPrices.ToDuration(),
			Comparison:   ttl.Comparison.ToDuration(),
			Premium:      ttl.Premium.ToDuration(),
		},
		NotifyTimeout: cfg.Engine.NotifyTimeout.ToDuration(),
	}, logger)
	defer eng.Close()

	// Joined before eng.Close so the watcher has no call in flight when the
	// notifier's Redis and Postgres clients go away.
	var background errgroup.Group
	defer func() {
		_ = background.Wait()
	}()

	if cfg.Watcher.Enabled {
		w, err := watcher.New(watcher.Config{
			Symbols:  cfg.Watcher.Symbols,
			Interval: cfg.Watcher.Interval.ToDuration(),
		}, eng, logger.ZerologLogger())
		if err != nil {
			return fmt.Errorf("failed to create premium watcher: %w", err)
		}
		background.Go(func() error {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Premium watcher stopped", "error", err)
				return err
			}
			return nil
		})
	}

	logger.Info("Price engine ready",
		"sources", len(allSources),
		"foreign_reference", calculator.ForeignReference(),
		"cache", cfg.Cache.Backend,
		"watcher", cfg.Watcher.Enabled)

	<-ctx.Done()
	return nil
}

// startSources creates and starts every enabled source. A source that
// fails to start is skipped.
func startSources(ctx context.Context, cfg *config.Config, logger *logging.Logger) []sources.Source {
	var started []sources.Source
	for _, sourceCfg := range cfg.EnabledSources() {
		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name)

		// Add logger to config so sources don't create their own
		if sourceCfg.Config == nil {
			sourceCfg.Config = make(map[string]interface{})
		}
		sourceCfg.Config["logger"] = logger
		if _, ok := sourceCfg.Config["name"]; !ok {
			sourceCfg.Config["name"] = sourceCfg.Name
		}

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config)
		if err != nil {
			logger.Warn("Failed to create source", "type", sourceCfg.Type, "name", sourceCfg.Name, "error", err)
			continue
		}

		if err := source.Start(ctx); err != nil {
			logger.Warn("Failed to start source", "source", source.Name(), "error", err)
			continue
		}

		started = append(started, source)
		logger.Info("Source started", "source", source.Name(), "region", source.Region(), "symbols", source.Symbols())
	}
	return started
}

// buildNotifier assembles the configured premium hand-off chain. It
// returns nil when nothing is enabled.
func buildNotifier(cfg *config.Config, client *redis.Client, store *postgres.PremiumStore, c *cache.Cache, logger *logging.Logger) notify.Notifier {
	var chain notify.Multi
	if cfg.Notifier.Log {
		chain = append(chain, notify.NewLogNotifier(logger))
	}
	if cfg.Notifier.Redis.Enabled && client != nil {
		chain = append(chain, notify.NewRedisPublisher(client, cfg.Notifier.Redis.Channel))
	}
	if store != nil {
		chain = append(chain, notify.NewRecorder(store))
	}
	if len(chain) == 0 {
		return nil
	}

	var n notify.Notifier = chain
	if len(chain) == 1 {
		n = chain[0]
	}
	if cfg.Notifier.Threshold.Sign() > 0 {
		n = notify.NewThreshold(n, cfg.Notifier.Threshold.Decimal, cfg.Notifier.Bucket.ToDuration(), c)
	}
	return n
}
