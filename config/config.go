// Package config loads application settings from an optional murmur.yaml
// plus MURMUR_* environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the process needs at startup.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// transcription backend
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`

	Languages              []string `mapstructure:"languages"`
	RedemptionMS           int      `mapstructure:"redemption_ms"`
	OnboardingRedemptionMS int      `mapstructure:"onboarding_redemption_ms"`

	RecordDir     string `mapstructure:"record_dir"`
	DataDir       string `mapstructure:"data_dir"`
	Notifications bool   `mapstructure:"notifications"`
	LogLevel      string `mapstructure:"log_level"`
}

// Load reads murmur.yaml from the working directory or /etc/murmur, applies
// MURMUR_* environment overrides and validates the result. A missing config
// file is fine; a malformed one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("murmur")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/murmur")

	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("base_url", "https://api.deepgram.com")
	v.SetDefault("model", "nova-2")
	v.SetDefault("languages", []string{"en"})
	v.SetDefault("redemption_ms", 400)
	v.SetDefault("onboarding_redemption_ms", 64)
	v.SetDefault("record_dir", "recordings")
	v.SetDefault("data_dir", "data")
	v.SetDefault("notifications", true)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("MURMUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// a local unauthenticated backend is fine without a key; a hosted one
	// is a guaranteed 401 at dial time, so fail at startup instead
	if cfg.APIKey == "" && !isLoopback(cfg.BaseURL) {
		return nil, errors.New("api_key is required for a non-local backend (MURMUR_API_KEY)")
	}
	return &cfg, nil
}

func isLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
