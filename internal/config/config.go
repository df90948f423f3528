// File: internal/config/config.go
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

type ServerConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// IdleTimeout is the server-side websocket read deadline; clients
	// heartbeat under it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL         string        `yaml:"url"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type AIConfig struct {
	OpenAIKey    string `yaml:"openai_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	Workers      int    `yaml:"workers"` // job runner pool size
}

// DeliveryConfig carries the client-side timeout budgets. The defaults are
// the contract values; tests shrink them.
type DeliveryConfig struct {
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxPollAttempts   int           `yaml:"max_poll_attempts"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RoomRetryDelay    time.Duration `yaml:"room_retry_delay"`
	UserBackoffBase   time.Duration `yaml:"user_backoff_base"`
	UserBackoffCap    time.Duration `yaml:"user_backoff_cap"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	AI       AIConfig       `yaml:"ai"`
	Delivery DeliveryConfig `yaml:"delivery"`

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
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// DefaultDelivery returns the delivery timeout budgets with every default
// applied, for callers that run without a config file.
func DefaultDelivery() DeliveryConfig {
	var cfg Config
	cfg.applyDefaults()
	return cfg.Delivery
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.TokenTTL <= 0 {
		cfg.Server.TokenTTL = 12 * time.Hour
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 30 * time.Second
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.PresenceTTL <= 0 {
		cfg.Redis.PresenceTTL = 2 * time.Minute
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.Workers <= 0 {
		cfg.AI.Workers = 8
	}
	d := &cfg.Delivery
	if d.HandshakeTimeout <= 0 {
		d.HandshakeTimeout = 10 * time.Second
	}
	if d.PollInterval <= 0 {
		d.PollInterval = 5 * time.Second
	}
	if d.MaxPollAttempts <= 0 {
		d.MaxPollAttempts = 60
	}
	if d.HeartbeatInterval <= 0 {
		d.HeartbeatInterval = 25 * time.Second
	}
	if d.RoomRetryDelay <= 0 {
		d.RoomRetryDelay = 3 * time.Second
	}
	if d.UserBackoffBase <= 0 {
		d.UserBackoffBase = time.Second
	}
	if d.UserBackoffCap <= 0 {
		d.UserBackoffCap = 30 * time.Second
	}
}
