// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty disables the admin guard
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply the embedded schema on startup
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables rate limiting and the poller lock
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	Provider      string        `yaml:"provider"` // fapshi|memory
	BaseURL       string        `yaml:"base_url"`
	Sandbox       bool          `yaml:"sandbox"`
	APIUser       string        `yaml:"api_user"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`      // per attempt
	MaxAttempts   int           `yaml:"max_attempts"` // including the first call
	BackoffBase   time.Duration `yaml:"backoff_base"` // 1s, 2s, 4s ...
	WebhookSecret string        `yaml:"webhook_secret"`
}

type PlansConfig struct {
	Monthly   int64   `yaml:"monthly"`
	Yearly    int64   `yaml:"yearly"`
	Tolerance float64 `yaml:"tolerance"`
}

type PaymentsConfig struct {
	MinAmount       int64         `yaml:"min_amount"`
	PhonePattern    string        `yaml:"phone_pattern"`
	CountryCode     string        `yaml:"country_code"`
	DefaultMessage  string        `yaml:"default_message"`
	RateLimit       int           `yaml:"rate_limit"` // initiates per user per window, 0 disables
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type ReconcilerConfig struct {
	Disabled        bool          `yaml:"disabled"`
	Interval        time.Duration `yaml:"interval"`
	BatchSize       int           `yaml:"batch_size"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	CallDelay       time.Duration `yaml:"call_delay"`
	RedispatchGrace time.Duration `yaml:"redispatch_grace"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"` // empty logs alerts instead
	ChatIDs       []int64 `yaml:"chat_ids"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Plans      PlansConfig      `yaml:"plans"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Alerts     AlertsConfig     `yaml:"alerts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, expands ${ENV} references, applies
// defaults and validates the fields the engine cannot run without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(b))), dev)
}

// Parse decodes an already expanded YAML document.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Gateway.Provider == "fapshi" && (cfg.Gateway.APIUser == "" || cfg.Gateway.APIKey == "") {
		return nil, errors.New("gateway.api_user and gateway.api_key are required")
	}
	if cfg.Plans.Monthly <= 0 || cfg.Plans.Yearly <= 0 {
		return nil, errors.New("plans.monthly and plans.yearly must be positive")
	}
	if _, err := regexp.Compile(cfg.Payments.PhonePattern); err != nil {
		return nil, fmt.Errorf("payments.phone_pattern: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 30*time.Second)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}

	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = "fapshi"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://live.fapshi.com"
		if cfg.Gateway.Sandbox {
			cfg.Gateway.BaseURL = "https://sandbox.fapshi.com"
		}
	}
	cfg.Gateway.Timeout = orDuration(cfg.Gateway.Timeout, 10*time.Second)
	if cfg.Gateway.MaxAttempts <= 0 {
		cfg.Gateway.MaxAttempts = 3
	}
	cfg.Gateway.BackoffBase = orDuration(cfg.Gateway.BackoffBase, time.Second)

	if cfg.Plans.Tolerance <= 0 {
		cfg.Plans.Tolerance = 0.05
	}

	if cfg.Payments.MinAmount <= 0 {
		cfg.Payments.MinAmount = 100
	}
	if cfg.Payments.PhonePattern == "" {
		cfg.Payments.PhonePattern = `^6[0-9]{8}$`
	}
	if cfg.Payments.CountryCode == "" {
		cfg.Payments.CountryCode = "237"
	}
	if cfg.Payments.DefaultMessage == "" {
		cfg.Payments.DefaultMessage = "Subscription payment"
	}
	cfg.Payments.RateLimitWindow = orDuration(cfg.Payments.RateLimitWindow, time.Minute)

	cfg.Reconciler.Interval = orDuration(cfg.Reconciler.Interval, time.Minute)
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 50
	}
	cfg.Reconciler.StaleAfter = orDuration(cfg.Reconciler.StaleAfter, 5*time.Minute)
	cfg.Reconciler.CallDelay = orDuration(cfg.Reconciler.CallDelay, 100*time.Millisecond)
	cfg.Reconciler.RedispatchGrace = orDuration(cfg.Reconciler.RedispatchGrace, 2*time.Minute)
	cfg.Reconciler.LockTTL = orDuration(cfg.Reconciler.LockTTL, 5*time.Minute)
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
