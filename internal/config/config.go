package config

import (
	"github.com/spf13/viper"

	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// Config holds the application configuration.
type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Streams  StreamsConfig  `mapstructure:"streams"`
	Log      LogConfig      `mapstructure:"log"`
}

// ExchangeConfig holds per-exchange endpoints and sizing.
type ExchangeConfig struct {
	RestURL  string `mapstructure:"rest_url"`
	WSDomain string `mapstructure:"ws_domain"`
	SizeUnit string `mapstructure:"size_unit"` // "base" or "quote"
}

// StreamsConfig lists what to subscribe to.
type StreamsConfig struct {
	Symbols       []string `mapstructure:"symbols"`
	PushFrequency string   `mapstructure:"push_frequency"`
	Timeframes    []string `mapstructure:"timeframes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file. Every field has a default, so a
// minimal file only needs the symbol list.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("exchange.rest_url", "https://fapi.binance.com")
	v.SetDefault("exchange.ws_domain", "fstream.binance.com")
	v.SetDefault("exchange.size_unit", "base")
	v.SetDefault("streams.push_frequency", "100ms")
	v.SetDefault("streams.timeframes", []string{"1m"})
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParsedSizeUnit maps the configured size unit onto the typed value passed
// into adapters.
func (c ExchangeConfig) ParsedSizeUnit() types.SizeUnit {
	return types.SizeUnitFromString(c.SizeUnit)
}
