// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds general process identity settings shared by both services.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig holds the durable store connection settings.
type StorageConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// TradesToCandlesConfig holds the aggregator's periodic-duty intervals, in
// seconds as in the original service's settings, except StorageMaxInterval,
// which is in days.
type TradesToCandlesConfig struct {
	FlushToDBPeriod     int `mapstructure:"flush_to_db_period"`
	BufferInterval      int `mapstructure:"buffer_interval"`
	BufferCleanPeriod   int `mapstructure:"buffer_clean_period"`
	StorageMaxInterval  int `mapstructure:"storage_max_interval"`
	StorageCleanPeriod  int `mapstructure:"storage_clean_period"`
}

func (c TradesToCandlesConfig) FlushToDBInterval() time.Duration {
	return time.Duration(c.FlushToDBPeriod) * time.Second
}
func (c TradesToCandlesConfig) BufferIntervalDuration() time.Duration {
	return time.Duration(c.BufferInterval) * time.Second
}
func (c TradesToCandlesConfig) BufferCleanInterval() time.Duration {
	return time.Duration(c.BufferCleanPeriod) * time.Second
}
func (c TradesToCandlesConfig) StorageMaxIntervalDuration() time.Duration {
	return time.Duration(c.StorageMaxInterval) * 24 * time.Hour
}
func (c TradesToCandlesConfig) StorageCleanInterval() time.Duration {
	return time.Duration(c.StorageCleanPeriod) * time.Second
}

// BinanceConfig holds the Binance exchange-connector settings.
type BinanceConfig struct {
	WebSocketURL        string `mapstructure:"websocket_url"`
	RESTURL             string `mapstructure:"rest_url"`
	SymbolsPerStream    int    `mapstructure:"symbols_per_stream"`
	MaxSubsPerMessage   int    `mapstructure:"max_subs_per_message"`
	SubDelayMs          int    `mapstructure:"sub_delay_ms"`
	RetryPeriodSec      int    `mapstructure:"retry_period_sec"`
}

func (c BinanceConfig) SubDelay() time.Duration {
	return time.Duration(c.SubDelayMs) * time.Millisecond
}
func (c BinanceConfig) RetryPeriod() time.Duration {
	return time.Duration(c.RetryPeriodSec) * time.Second
}

// IngestConfig is the quote_consumer process's configuration: connector,
// aggregator, storage, its own HTTP port, ambient.
type IngestConfig struct {
	App          AppConfig             `mapstructure:"app"`
	Port         int                   `mapstructure:"port"`
	Binance      BinanceConfig         `mapstructure:"binance"`
	TradesToCandles TradesToCandlesConfig `mapstructure:"trades_to_candles"`
	Storage      StorageConfig         `mapstructure:"storage"`
	Telemetry    TelemetryConfig       `mapstructure:"telemetry"`
}

// QuoteConfig is the currency_conversion process's configuration: storage,
// the upstream in-memory candle service, CORS, ambient.
type QuoteConfig struct {
	App                  AppConfig       `mapstructure:"app"`
	Port                 int             `mapstructure:"port"`
	QuoteConsumerService string          `mapstructure:"quote_consumer_service"`
	AllowedOrigins       []string        `mapstructure:"allowed_origins"`
	StaleAfterSec        int             `mapstructure:"stale_after_sec"`
	Storage              StorageConfig   `mapstructure:"storage"`
	Telemetry            TelemetryConfig `mapstructure:"telemetry"`
}

func (c QuoteConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

func newViper(configPath, envPrefix string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

func setCommonDefaults(v *viper.Viper, appName string) {
	v.SetDefault("app.name", appName)
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", appName)
	v.SetDefault("telemetry.prometheus_port", 2223)
}

// LoadIngestConfig loads the quote_consumer process's configuration.
func LoadIngestConfig(configPath string) (*IngestConfig, error) {
	v := newViper(configPath, "QUOTE_CONSUMER")

	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.debug", "DEBUG")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("port", "QUOTE_CONSUMER_APP_PORT")
	v.BindEnv("storage.dsn", "DB_SERVICE")
	v.BindEnv("binance.websocket_url", "BINANCE_WS_URL")
	v.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	v.BindEnv("telemetry.otlp_endpoint", "OTLP_ENDPOINT")
	v.BindEnv("telemetry.prometheus_port", "PROMETHEUS_PORT")

	setCommonDefaults(v, "quote-consumer")
	v.SetDefault("port", 9001)
	v.SetDefault("binance.websocket_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.rest_url", "https://api.binance.com")
	v.SetDefault("binance.symbols_per_stream", 1024)
	v.SetDefault("binance.max_subs_per_message", 200)
	v.SetDefault("binance.sub_delay_ms", 300)
	v.SetDefault("binance.retry_period_sec", 10)
	v.SetDefault("trades_to_candles.flush_to_db_period", 30)
	v.SetDefault("trades_to_candles.buffer_interval", 60)
	v.SetDefault("trades_to_candles.buffer_clean_period", 45)
	v.SetDefault("trades_to_candles.storage_max_interval", 7)
	v.SetDefault("trades_to_candles.storage_clean_period", 600)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg IngestConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadQuoteConfig loads the currency_conversion process's configuration.
func LoadQuoteConfig(configPath string) (*QuoteConfig, error) {
	v := newViper(configPath, "CURRENCY_CONVERSION")

	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.debug", "DEBUG")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("port", "CURRENCY_CONVERSION_APP_PORT")
	v.BindEnv("quote_consumer_service", "QUOTE_CONSUMER_SERVICE")
	v.BindEnv("allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("storage.dsn", "DB_SERVICE")
	v.BindEnv("telemetry.enabled", "TELEMETRY_ENABLED")
	v.BindEnv("telemetry.otlp_endpoint", "OTLP_ENDPOINT")
	v.BindEnv("telemetry.prometheus_port", "PROMETHEUS_PORT")

	setCommonDefaults(v, "currency-conversion")
	v.SetDefault("port", 9000)
	v.SetDefault("quote_consumer_service", "http://localhost:9001")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("stale_after_sec", 60)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg QuoteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Validate validates the ingest config.
func (c *IngestConfig) Validate() error {
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn (DB_SERVICE) is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive")
	}
	return nil
}

// Validate validates the quote config.
func (c *QuoteConfig) Validate() error {
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn (DB_SERVICE) is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("port must be positive")
	}
	if c.QuoteConsumerService == "" {
		return fmt.Errorf("quote_consumer_service is required")
	}
	return nil
}
