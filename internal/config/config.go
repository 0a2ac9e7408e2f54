package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Chat  ChatConfig  `mapstructure:"chat" yaml:"chat"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver         string `mapstructure:"driver" yaml:"driver"`
	SQLitePath     string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN    string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	RedisURL       string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisRetention int    `mapstructure:"redis_retention" yaml:"redis_retention"`
}

// ChatConfig tunes rooms and sessions.
type ChatConfig struct {
	CacheSize          int           `mapstructure:"cache_size" yaml:"cache_size"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxUsernameLength  int           `mapstructure:"max_username_length" yaml:"max_username_length"`
	MaxMessageLength   int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	QueueSize          int           `mapstructure:"queue_size" yaml:"queue_size"`
	PersistQueueSize   int           `mapstructure:"persist_queue_size" yaml:"persist_queue_size"`
	PersistRetries     int           `mapstructure:"persist_retries" yaml:"persist_retries"`
	PersistTimeout     time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxFrameBytes      int64         `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Store: StoreConfig{
			Driver:         DriverSQLite,
			SQLitePath:     "roomchat.db",
			RedisRetention: 10000,
		},
		Chat: ChatConfig{
			CacheSize:          50,
			HistoryLimit:       1000,
			MaxUsernameLength:  32,
			MaxMessageLength:   4000,
			QueueSize:          256,
			PersistQueueSize:   1024,
			PersistRetries:     2,
			PersistTimeout:     3 * time.Second,
			RateLimitPerMinute: 0,
			MaxFrameBytes:      32 << 10,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Used for command-line overrides.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.SQLitePath != "" {
		c.Store.SQLitePath = other.Store.SQLitePath
	}
	if other.Store.PostgresDSN != "" {
		c.Store.PostgresDSN = other.Store.PostgresDSN
	}
	if other.Store.RedisURL != "" {
		c.Store.RedisURL = other.Store.RedisURL
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for driver %q", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for driver %q", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Chat.HistoryLimit < 1 || c.Chat.HistoryLimit > 1000 {
		return fmt.Errorf("chat.history_limit must be within 1..1000, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.CacheSize < 1 {
		return fmt.Errorf("chat.cache_size must be positive, got %d", c.Chat.CacheSize)
	}
	return nil
}
