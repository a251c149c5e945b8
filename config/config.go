// Package config loads service configuration from an optional yaml file and
// FLOHMARKT_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"`
	LogLevel    string `mapstructure:"log_level"`

	// RedisURL selects the Redis store; empty falls back to the in-memory
	// store (single instance, dev only).
	RedisURL string `mapstructure:"redis_url"`

	// AllowedOrigins is a comma-separated list of WebAuthn origins, e.g.
	// "https://garagen-flohmarkt.pages.dev,http://localhost:5173". Empty
	// skips the origin check (dev-only).
	AllowedOrigins string `mapstructure:"allowed_origins"`

	// AdminToken restricts the approval surface; empty disables it.
	AdminToken string `mapstructure:"admin_token"`

	NominatimURL   string        `mapstructure:"nominatim_url"`
	GeocodeTimeout time.Duration `mapstructure:"geocode_timeout"`

	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("listen_addr", ":8787")
	v.SetDefault("log_level", "info")
	// Empty defaults so AutomaticEnv picks these up during Unmarshal.
	v.SetDefault("redis_url", "")
	v.SetDefault("allowed_origins", "")
	v.SetDefault("admin_token", "")
	v.SetDefault("nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode_timeout", 3*time.Second)
	v.SetDefault("challenge_ttl", 5*time.Minute)
	v.SetDefault("session_ttl", 30*time.Minute)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/flohmarkt")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FLOHMARKT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Origins splits the configured origin allow-list.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
