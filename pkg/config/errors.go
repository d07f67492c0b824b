// Package config provides configuration loading and validation.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrNoSourcesEnabled indicates that no sources are enabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrDuplicateSourceName indicates that two sources share a name.
	ErrDuplicateSourceName = errors.New("duplicate source name")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
	// ErrInvalidEngine indicates a non-positive worker, queue or timeout setting.
	ErrInvalidEngine = errors.New("invalid engine setting")
	// ErrInvalidCacheBackend indicates that the cache backend is unknown.
	ErrInvalidCacheBackend = errors.New("invalid cache backend")
	// ErrRedisAddrRequired indicates that a Redis feature is enabled without an address.
	ErrRedisAddrRequired = errors.New("redis.addr must be specified")
	// ErrForeignReferenceRequired indicates that premium.foreign_reference is missing.
	ErrForeignReferenceRequired = errors.New("premium.foreign_reference must be specified")
	// ErrForeignReferenceUnknown indicates that the foreign reference is not an enabled source.
	ErrForeignReferenceUnknown = errors.New("premium.foreign_reference is not an enabled source")
	// ErrInvalidFXProvider indicates that the FX provider is unknown.
	ErrInvalidFXProvider = errors.New("invalid fx provider")
	// ErrFXRateRequired indicates that the static provider has no positive rate.
	ErrFXRateRequired = errors.New("fx.rate must be positive for the static provider")
	// ErrPostgresDSNRequired indicates that recording is enabled without a DSN.
	ErrPostgresDSNRequired = errors.New("storage.postgres.dsn must be specified")
	// ErrWatcherSymbolsRequired indicates that the watcher is enabled without symbols.
	ErrWatcherSymbolsRequired = errors.New("watcher.symbols must not be empty")
)
