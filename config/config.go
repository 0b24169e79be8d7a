package config

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"pickup-push-backend/internal/logger"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	Relay      RelayConfig      `yaml:"relay"`
	Auth       AuthConfig       `yaml:"auth"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Reminder   ReminderConfig   `yaml:"reminder"`
}

// WorkerPoolConfig holds the configuration for the push relay worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	Urgency    string `yaml:"urgency"`
}

// RelayConfig points the dispatcher at the push relay function.
// An empty BaseURL disables relaying; dispatch then relies on the
// durable rows and the in-page fallback.
type RelayConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	DefaultTitle   string        `yaml:"default_title"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	LogLevel        string  `yaml:"log_level"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	PublicOrigin    string  `yaml:"public_origin"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ReminderConfig controls the scheduled match reminder sweep.
type ReminderConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`
	LeadMinutes int    `yaml:"lead_minutes"`
	Timezone    string `yaml:"timezone"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	log := logger.WithModule("config")

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.Urgency == "" {
		cfg.Push.Urgency = "normal"
	}

	if cfg.Relay.TimeoutSeconds <= 0 {
		cfg.Relay.TimeoutSeconds = 10
	}
	cfg.Relay.Timeout = time.Duration(cfg.Relay.TimeoutSeconds) * time.Second
	if cfg.Relay.DefaultTitle == "" {
		cfg.Relay.DefaultTitle = "Match update"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Warn("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Reminder.Schedule == "" {
		cfg.Reminder.Schedule = "*/15 * * * *"
	}
	if cfg.Reminder.LeadMinutes <= 0 {
		cfg.Reminder.LeadMinutes = 120
	}
	if cfg.Reminder.Timezone == "" {
		cfg.Reminder.Timezone = "UTC"
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty; authenticated routes will reject every request",
			zap.String("hint", "set auth.jwt_secret"))
	}
}
