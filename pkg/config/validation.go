package config

import (
	"fmt"
	"strings"
)

var (
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats  = map[string]bool{"json": true, "text": true}
	validSourceTypes = map[string]bool{"cex": true}
	validFXProvider  = map[string]bool{"static": true, "frankfurter": true, "exchangerate_api": true}
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := validateEngineConfig(&cfg.Engine); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := validateSources(cfg.Sources); err != nil {
		return err
	}

	if err := validateCacheConfig(cfg); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := validatePremiumConfig(cfg); err != nil {
		return fmt.Errorf("premium config: %w", err)
	}

	if cfg.Notifier.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("notifier config: %w", ErrRedisAddrRequired)
	}
	if cfg.Notifier.Record && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("notifier config: %w", ErrPostgresDSNRequired)
	}

	if cfg.Watcher.Enabled && len(cfg.Watcher.Symbols) == 0 {
		return fmt.Errorf("watcher config: %w", ErrWatcherSymbolsRequired)
	}

	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	if !validLogLevels[strings.ToLower(cfg.Level)] {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, cfg.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Format)] {
		return fmt.Errorf("%w: %s", ErrInvalidLogFormat, cfg.Format)
	}
	return nil
}

func validateEngineConfig(cfg *EngineConfig) error {
	switch {
	case cfg.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1", ErrInvalidEngine)
	case cfg.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1", ErrInvalidEngine)
	case cfg.SourceTimeout.ToDuration() <= 0:
		return fmt.Errorf("%w: source_timeout must be positive", ErrInvalidEngine)
	case cfg.SpreadScale < 0:
		return fmt.Errorf("%w: spread_scale must be >= 0", ErrInvalidEngine)
	}
	return nil
}

func validateSources(list []SourceConfig) error {
	if len(list) == 0 {
		return ErrNoSourcesConfigured
	}

	seen := make(map[string]bool, len(list))
	enabled := 0
	for i, source := range list {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
		key := strings.ToLower(source.Name)
		if seen[key] {
			return fmt.Errorf("source %d: %w: %s", i, ErrDuplicateSourceName, source.Name)
		}
		seen[key] = true
		if source.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoSourcesEnabled
	}
	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}
	if !validSourceTypes[cfg.Type] {
		return fmt.Errorf("%w: %s (must be 'cex')", ErrInvalidSourceType, cfg.Type)
	}
	return nil
}

func validateCacheConfig(cfg *Config) error {
	switch strings.ToLower(cfg.Cache.Backend) {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return ErrRedisAddrRequired
		}
	default:
		return fmt.Errorf("%w: %s (must be 'memory' or 'redis')", ErrInvalidCacheBackend, cfg.Cache.Backend)
	}
	return nil
}

func validatePremiumConfig(cfg *Config) error {
	ref := strings.TrimSpace(cfg.Premium.ForeignReference)
	if ref == "" {
		return ErrForeignReferenceRequired
	}
	found := false
	for _, s := range cfg.EnabledSources() {
		if strings.EqualFold(s.Name, ref) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrForeignReferenceUnknown, ref)
	}

	fx := cfg.Premium.FX
	provider := strings.ToLower(fx.Provider)
	if !validFXProvider[provider] {
		return fmt.Errorf("%w: %s", ErrInvalidFXProvider, fx.Provider)
	}
	if provider == "static" && fx.Rate.Sign() <= 0 {
		return ErrFXRateRequired
	}
	return nil
}
