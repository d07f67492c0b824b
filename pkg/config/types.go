package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Premium  PremiumConfig  `yaml:"premium"`
	Notifier NotifierConfig `yaml:"notifier"`
	Storage  StorageConfig  `yaml:"storage"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Sources  []SourceConfig `yaml:"sources"`
}

// EngineConfig configures the fan-out and comparison
type EngineConfig struct {
	Workers       int      `yaml:"workers"`        // Fan-out worker goroutines
	QueueSize     int      `yaml:"queue_size"`     // Pending source calls before Submit blocks
	SourceTimeout Duration `yaml:"source_timeout"` // Bound on one source call
	SpreadScale   int32    `yaml:"spread_scale"`   // Decimal places of the spread rate
	NotifyTimeout Duration `yaml:"notify_timeout"` // Bound on one notifier hand-off
}

// CacheConfig configures the result cache
type CacheConfig struct {
	Backend         string    `yaml:"backend"` // memory or redis
	JanitorInterval Duration  `yaml:"janitor_interval"`
	TTL             TTLConfig `yaml:"ttl"`
}

// TTLConfig holds the lifetime of each cached result kind
type TTLConfig struct {
	Prices       Duration `yaml:"prices"`
	RegionPrices Duration `yaml:"region_prices"`
	Comparison   Duration `yaml:"comparison"`
	Premium      Duration `yaml:"premium"`
}

// RedisConfig configures the shared Redis client
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PremiumConfig configures the premium calculator
type PremiumConfig struct {
	ForeignReference string   `yaml:"foreign_reference"` // Source name of the foreign reference price
	Scale            int32    `yaml:"scale"`             // Decimal places of the premium rate
	FX               FXConfig `yaml:"fx"`
}

// FXConfig configures the USD/KRW exchange rate
type FXConfig struct {
	Provider        string   `yaml:"provider"` // static, frankfurter or exchangerate_api
	Base            string   `yaml:"base"`
	Quote           string   `yaml:"quote"`
	Rate            Decimal  `yaml:"rate"` // Static rate, or fallback for remote providers
	APIURL          string   `yaml:"api_url"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	MaxAge          Duration `yaml:"max_age"`
	Timeout         Duration `yaml:"timeout"`
}

// NotifierConfig configures where computed premiums are handed off
type NotifierConfig struct {
	Log       bool                `yaml:"log"`
	Redis     RedisNotifierConfig `yaml:"redis"`
	Record    bool                `yaml:"record"`    // Store premiums in Postgres
	Threshold Decimal             `yaml:"threshold"` // Minimum |premium rate| in percent
	Bucket    Duration            `yaml:"bucket"`    // De-duplication window per symbol and direction
}

// RedisNotifierConfig configures Redis pub/sub delivery
type RedisNotifierConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// StorageConfig configures the premium history store
type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig configures the Postgres connection
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// WatcherConfig configures the background premium watcher
type WatcherConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Symbols  []string `yaml:"symbols"`
	Interval Duration `yaml:"interval"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// Decimal is a decimal.Decimal read from a YAML number or string
type Decimal struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	v, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid decimal %q", value.Line, value.Value)
	}
	d.Decimal = v
	return nil
}
