package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultPageBaseURL    = "https://graph.pageplatform.com"
	DefaultPageAPIVersion = "v1"
	DefaultPageTimeout    = 15 * time.Second
	DefaultPageRPS        = 10.0
)

type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Page   PageConfig   `toml:"page"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// PageConfig holds the page platform credentials and client tuning.
// AppSecret is optional; when empty, webhook signature validation is skipped.
type PageConfig struct {
	BaseURL           string  `toml:"base_url" validate:"required,url"`
	APIVersion        string  `toml:"api_version" validate:"required"`
	AccessToken       string  `toml:"access_token" validate:"required"`
	AppSecret         string  `toml:"app_secret"`
	VerifyToken       string  `toml:"verify_token" validate:"required"`
	TimeoutSeconds    int     `toml:"timeout_seconds" validate:"gte=0"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gte=0"`
}

// Timeout returns the configured request timeout, or the default.
func (c PageConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultPageTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Page: PageConfig{
			BaseURL:           DefaultPageBaseURL,
			APIVersion:        DefaultPageAPIVersion,
			RequestsPerSecond: DefaultPageRPS,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that the page section carries everything needed to serve
// webhooks. Called at startup, not inside Load, so tooling can load partial
// configs.
func (c Config) Validate() error {
	if err := validator.New().Struct(c.Page); err != nil {
		return fmt.Errorf("page config: %w", err)
	}
	return nil
}
