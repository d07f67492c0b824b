package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${ENV} references in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 16
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 256
	}
	if cfg.Engine.SourceTimeout == 0 {
		cfg.Engine.SourceTimeout = Duration(3 * time.Second)
	}
	if cfg.Engine.SpreadScale == 0 {
		cfg.Engine.SpreadScale = 2
	}
	if cfg.Engine.NotifyTimeout == 0 {
		cfg.Engine.NotifyTimeout = Duration(5 * time.Second)
	}

	// Cache defaults
	cfg.Cache.Backend = strings.ToLower(cfg.Cache.Backend)
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.JanitorInterval == 0 {
		cfg.Cache.JanitorInterval = Duration(time.Minute)
	}
	setDuration(&cfg.Cache.TTL.Prices, 10*time.Second)
	setDuration(&cfg.Cache.TTL.RegionPrices, 10*time.Second)
	setDuration(&cfg.Cache.TTL.Comparison, 30*time.Second)
	setDuration(&cfg.Cache.TTL.Premium, 60*time.Second)
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "coinprices:"
	}

	// Premium defaults
	if cfg.Premium.Scale == 0 {
		cfg.Premium.Scale = 2
	}
	if cfg.Premium.FX.Provider == "" {
		cfg.Premium.FX.Provider = "static"
	}
	if cfg.Premium.FX.Base == "" {
		cfg.Premium.FX.Base = "USD"
	}
	if cfg.Premium.FX.Quote == "" {
		cfg.Premium.FX.Quote = "KRW"
	}
	setDuration(&cfg.Premium.FX.RefreshInterval, time.Hour)
	setDuration(&cfg.Premium.FX.MaxAge, 24*time.Hour)
	setDuration(&cfg.Premium.FX.Timeout, 10*time.Second)

	// Notifier defaults
	if cfg.Notifier.Redis.Channel == "" {
		cfg.Notifier.Redis.Channel = "coinprices:premium"
	}
	setDuration(&cfg.Notifier.Bucket, 10*time.Minute)

	// Watcher defaults
	setDuration(&cfg.Watcher.Interval, time.Minute)

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

// EnabledSources returns the enabled source entries in file order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// UsesRedis reports whether any component needs the Redis client.
func (c *Config) UsesRedis() bool {
	return c.Cache.Backend == "redis" || c.Notifier.Redis.Enabled
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}
