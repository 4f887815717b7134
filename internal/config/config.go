package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	AccessToken   string `yaml:"access_token"`
	BaseURL       string `yaml:"base_url"`
	ReturnBaseURL string `yaml:"return_base_url"` // base for success/failure/pending return pages
}

type ReconcileConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`    // polling channel + surface watch cadence
	SessionDeadline time.Duration `yaml:"session_deadline"` // per-session wall-clock horizon
	ResyncInterval  time.Duration `yaml:"resync_interval"`  // stale-pending sweep cadence
	StaleAfter      time.Duration `yaml:"stale_after"`      // pending age before the sweep retries it
	Workers         int           `yaml:"workers"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Reconcile.PollInterval <= 0 {
		cfg.Reconcile.PollInterval = 3 * time.Second
	}
	if cfg.Reconcile.SessionDeadline <= 0 {
		cfg.Reconcile.SessionDeadline = 10 * time.Minute
	}
	if cfg.Reconcile.ResyncInterval <= 0 {
		cfg.Reconcile.ResyncInterval = time.Minute
	}
	if cfg.Reconcile.StaleAfter <= 0 {
		cfg.Reconcile.StaleAfter = cfg.Reconcile.SessionDeadline
	}
	if cfg.Reconcile.Workers <= 0 {
		cfg.Reconcile.Workers = 8
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.mercadopago.com"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Gateway.AccessToken == "" {
		return nil, errors.New("gateway.access_token is required")
	}
	if cfg.Web.JWTSecret == "" {
		return nil, errors.New("web.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
