// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Captcha CaptchaConfig `mapstructure:"captcha"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScraperConfig governs the orchestration engine.
type ScraperConfig struct {
	PoolSize           int  `mapstructure:"pool_size"`
	Headless           bool `mapstructure:"headless"`
	StepTimeoutSeconds int  `mapstructure:"step_timeout_seconds"`
	RatePerHour        int  `mapstructure:"rate_per_hour"`
	// CooldownSeconds overrides the failure-cooldown length; zero keeps
	// the default policy.
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// PortalConfig points the site driver at a registry deployment.
type PortalConfig struct {
	URL        string `mapstructure:"url"`
	KeyDelayMs int    `mapstructure:"key_delay_ms"`
	MaxPages   int    `mapstructure:"max_pages"`
}

// QueueConfig selects and configures the job queue provider.
type QueueConfig struct {
	// Provider is one of "rest", "postgres", "memory".
	Provider      string `mapstructure:"provider"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	DSN           string `mapstructure:"dsn"`
	WorkerTag     string `mapstructure:"worker_tag"`
	FetchLimit    int    `mapstructure:"fetch_limit"`
	PriorityTable string `mapstructure:"priority_table"`
	Table         string `mapstructure:"table"`
	ResultsTable  string `mapstructure:"results_table"`
	BatchTable    string `mapstructure:"batch_table"`
}

// CaptchaConfig configures the solve-as-a-service client.
type CaptchaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// EnrichConfig configures the identity lookup client.
type EnrichConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scraper.pool_size", 3)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.step_timeout_seconds", 45)
	v.SetDefault("scraper.rate_per_hour", 0)
	v.SetDefault("portal.key_delay_ms", 120)
	v.SetDefault("portal.max_pages", 100)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.worker_tag", "harvester-1")
	v.SetDefault("queue.fetch_limit", 50)
	v.SetDefault("captcha.enabled", false)
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.PoolSize <= 0 {
		return fmt.Errorf("scraper.pool_size must be > 0")
	}
	if c.Scraper.StepTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.step_timeout_seconds must be > 0")
	}
	switch c.Queue.Provider {
	case "memory":
	case "rest":
		if c.Queue.BaseURL == "" {
			return fmt.Errorf("queue.base_url must be set for the rest provider")
		}
	case "postgres":
		if c.Queue.DSN == "" {
			return fmt.Errorf("queue.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("queue.provider must be one of rest, postgres, memory")
	}
	if c.Captcha.Enabled && c.Captcha.APIKey == "" {
		return fmt.Errorf("captcha.api_key must be set when captcha is enabled")
	}
	if c.Enrich.Enabled && c.Enrich.BaseURL == "" {
		return fmt.Errorf("enrich.base_url must be set when enrichment is enabled")
	}
	return nil
}

// StepTimeout converts the step timeout into a duration.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.Scraper.StepTimeoutSeconds) * time.Second
}

// KeyDelay converts the keystroke pacing into a duration.
func (c Config) KeyDelay() time.Duration {
	return time.Duration(c.Portal.KeyDelayMs) * time.Millisecond
}

// Cooldown converts the cooldown override into a duration; zero means the
// default policy applies.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Scraper.CooldownSeconds) * time.Second
}
