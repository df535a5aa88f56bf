package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Map      MapConfig      `mapstructure:"map"`
	Messages MessagesConfig `mapstructure:"messages"`
	History  HistoryConfig  `mapstructure:"history"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port" validate:"required,numeric"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// GeocoderConfig holds the geocoding provider configuration
type GeocoderConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	UserAgent    string        `mapstructure:"user_agent" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Language     string        `mapstructure:"language"`
	CountryCodes string        `mapstructure:"country_codes"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds the optional circuit breaker settings for the geocoder.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures" validate:"required_if=Enabled true"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"required_if=Enabled true"`
}

// MapConfig holds viewport defaults
type MapConfig struct {
	DefaultLat  float64 `mapstructure:"default_lat" validate:"min=-90,max=90"`
	DefaultLng  float64 `mapstructure:"default_lng" validate:"min=-180,max=180"`
	DefaultZoom int     `mapstructure:"default_zoom" validate:"min=0,max=22"`
	FoundZoom   int     `mapstructure:"found_zoom" validate:"min=0,max=22"`
}

// MessagesConfig holds the conversational reply texts
type MessagesConfig struct {
	Welcome     string `mapstructure:"welcome" validate:"required"`
	FoundPrefix string `mapstructure:"found_prefix" validate:"required"`
	NotFound    string `mapstructure:"not_found" validate:"required"`
}

// HistoryConfig holds the transcript journal configuration
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path" validate:"required_if=Enabled true"`
}

const envPrefix = "MAPCHAT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "mapchat-go/0.1 (+https://github.com/comigor/mapchat-go)")
	v.SetDefault("geocoder.timeout", 10*time.Second)
	v.SetDefault("geocoder.language", "")
	v.SetDefault("geocoder.country_codes", "")
	v.SetDefault("geocoder.breaker.enabled", false)
	v.SetDefault("geocoder.breaker.max_failures", 5)
	v.SetDefault("geocoder.breaker.open_timeout", 30*time.Second)

	v.SetDefault("map.default_lat", 51.505)
	v.SetDefault("map.default_lng", -0.09)
	v.SetDefault("map.default_zoom", 13)
	v.SetDefault("map.found_zoom", 16)

	v.SetDefault("messages.welcome", "Hi! Type a place or an address and I'll show it on the map.")
	v.SetDefault("messages.found_prefix", "Found it:")
	v.SetDefault("messages.not_found", "Sorry, I couldn't find that location. Try a more specific address.")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", "history.db")
}

// Load loads the configuration from config.yaml (or the file named by CONFIG_PATH),
// applies MAPCHAT_* environment overrides and validates the result.
// A missing config.yaml is not an error; every key has a default.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}
