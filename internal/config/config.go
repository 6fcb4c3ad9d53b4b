// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	Reputation ReputationConfig `mapstructure:"reputation" yaml:"reputation"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Fusion     FusionConfig     `mapstructure:"fusion" yaml:"fusion"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// NetworkConfig tunes the shared outbound HTTP client.
type NetworkConfig struct {
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host" yaml:"max_conns_per_host"`
	IgnoreTLSErrors     bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// ProviderConfig configures a single reputation provider.
type ProviderConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string        `mapstructure:"api_key" yaml:"-"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// CacheConfig configures the optional redis verdict cache in front of the
// reputation providers.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ReputationConfig groups the external threat-intelligence feeds.
type ReputationConfig struct {
	VirusTotal   ProviderConfig `mapstructure:"virustotal" yaml:"virustotal"`
	SafeBrowsing ProviderConfig `mapstructure:"safebrowsing" yaml:"safebrowsing"`
	Cache        CacheConfig    `mapstructure:"cache" yaml:"cache"`
}

// ClassifierConfig points at the ensemble inference service.
type ClassifierConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// FusionConfig carries the signal weights. The ML weight is primary; the
// reputation weights act as a high-precision veto on top of it.
type FusionConfig struct {
	MLWeight  float64 `mapstructure:"ml_weight" yaml:"ml_weight"`
	VTWeight  float64 `mapstructure:"vt_weight" yaml:"vt_weight"`
	GSBWeight float64 `mapstructure:"gsb_weight" yaml:"gsb_weight"`
}

// EngineConfig configures the batch scan orchestrator.
type EngineConfig struct {
	// Concurrency bounds the number of in-flight single-URL pipelines; it is
	// the system's only admission control and is sized to respect external
	// API rate limits.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// InteractiveBatchCap bounds the JSON batch endpoint; BulkBatchCap bounds
	// the CSV path. The two entry points are capped independently.
	InteractiveBatchCap int `mapstructure:"interactive_batch_cap" yaml:"interactive_batch_cap"`
	BulkBatchCap        int `mapstructure:"bulk_batch_cap" yaml:"bulk_batch_cap"`

	// BatchTimeout, when positive, bounds a whole batch. Pipelines still
	// pending at the deadline are synthesized as Unknown results.
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
}

// ServerConfig configures the HTTP API surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// global holds the process-wide configuration set by the root command.
var global atomic.Pointer[Config]

// Get returns the process-wide configuration, or a default one if Set was
// never called (tests, library use).
func Get() *Config {
	if cfg := global.Load(); cfg != nil {
		return cfg
	}
	return NewDefaultConfig()
}

// Set installs the process-wide configuration.
func Set(cfg *Config) { global.Store(cfg) }

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with pristine defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "verdict")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Network --
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("network.fetch_timeout", "10s")
	v.SetDefault("network.max_idle_conns", 100)
	v.SetDefault("network.max_idle_conns_per_host", 20)
	v.SetDefault("network.max_conns_per_host", 50)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.user_agent", "verdict-cli/0.1")

	// -- Reputation --
	v.SetDefault("reputation.virustotal.enabled", true)
	v.SetDefault("reputation.virustotal.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("reputation.virustotal.timeout", "5s")
	v.SetDefault("reputation.virustotal.rate_limit", 4.0)
	v.SetDefault("reputation.safebrowsing.enabled", true)
	v.SetDefault("reputation.safebrowsing.base_url", "https://safebrowsing.googleapis.com/v4")
	v.SetDefault("reputation.safebrowsing.timeout", "5s")
	v.SetDefault("reputation.safebrowsing.rate_limit", 10.0)
	v.SetDefault("reputation.cache.enabled", false)
	v.SetDefault("reputation.cache.addr", "localhost:6379")
	v.SetDefault("reputation.cache.db", 0)
	v.SetDefault("reputation.cache.ttl", "1h")

	// -- Classifier --
	v.SetDefault("classifier.endpoint", "http://localhost:8500/predict")
	v.SetDefault("classifier.timeout", "10s")

	// -- Fusion --
	v.SetDefault("fusion.ml_weight", 0.5)
	v.SetDefault("fusion.vt_weight", 0.3)
	v.SetDefault("fusion.gsb_weight", 0.2)

	// -- Engine --
	v.SetDefault("engine.concurrency", 10)
	v.SetDefault("engine.interactive_batch_cap", 10)
	v.SetDefault("engine.bulk_batch_cap", 1000)
	v.SetDefault("engine.batch_timeout", "0s")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("reputation.virustotal.api_key", "VERDICT_VT_API_KEY")
	v.BindEnv("reputation.safebrowsing.api_key", "VERDICT_GSB_API_KEY")
	v.BindEnv("reputation.cache.password", "VERDICT_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Pick up the keys directly if Unmarshal didn't.
	if cfg.Reputation.VirusTotal.APIKey == "" {
		cfg.Reputation.VirusTotal.APIKey = os.Getenv("VERDICT_VT_API_KEY")
	}
	if cfg.Reputation.SafeBrowsing.APIKey == "" {
		cfg.Reputation.SafeBrowsing.APIKey = os.Getenv("VERDICT_GSB_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if c.Engine.InteractiveBatchCap <= 0 {
		return fmt.Errorf("engine.interactive_batch_cap must be a positive integer")
	}
	if c.Engine.BulkBatchCap < c.Engine.InteractiveBatchCap {
		return fmt.Errorf("engine.bulk_batch_cap must be at least the interactive cap")
	}
	if err := c.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the fusion weights.
func (f *FusionConfig) Validate() error {
	for name, w := range map[string]float64{
		"ml_weight":  f.MLWeight,
		"vt_weight":  f.VTWeight,
		"gsb_weight": f.GSBWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	sum := f.MLWeight + f.VTWeight + f.GSBWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %v", sum)
	}
	return nil
}
