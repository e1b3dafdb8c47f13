package config

import (
	"fmt"
	"time"
)

// Event log backends.
const (
	EventLogSQLite = "sqlite"
	EventLogBadger = "badger"
)

// Presence backends.
const (
	PresenceMemory    = "memory"
	PresenceDirectory = "directory"
	PresenceRedis     = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	EventLog EventLogConfig `mapstructure:"eventlog" yaml:"eventlog"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	WS       WSConfig       `mapstructure:"ws" yaml:"ws"`
}

// EventLogConfig selects where chat messages are persisted.
type EventLogConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	BadgerDir    string        `mapstructure:"badger_dir" yaml:"badger_dir"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// HistoryConfig bounds history replay. Limit 0 replays everything.
type HistoryConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// PresenceConfig selects the presence tracker.
type PresenceConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`
	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix" yaml:"redis_key_prefix"`
}

// WSConfig tunes websocket connections.
type WSConfig struct {
	SendBuffer         int   `mapstructure:"send_buffer" yaml:"send_buffer"`
	ReadLimit          int64 `mapstructure:"read_limit" yaml:"read_limit"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	InsecureSkipVerify bool  `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "tweetchat.db",
		EventLog: EventLogConfig{
			Backend:      EventLogSQLite,
			BadgerDir:    "data/eventlog",
			WriteTimeout: 5 * time.Second,
		},
		History: HistoryConfig{
			Limit: 200,
		},
		Presence: PresenceConfig{
			Backend:        PresenceDirectory,
			RedisAddr:      "localhost:6379",
			RedisKeyPrefix: "tweetchat:",
		},
		WS: WSConfig{
			SendBuffer:         64,
			ReadLimit:          32 << 10,
			RateLimitPerMinute: 120,
			InsecureSkipVerify: true,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Validate rejects unknown backends and nonsensical limits.
func (c Config) Validate() error {
	switch c.EventLog.Backend {
	case EventLogSQLite:
	case EventLogBadger:
		if c.EventLog.BadgerDir == "" {
			return fmt.Errorf("eventlog.badger_dir is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown eventlog.backend %q", c.EventLog.Backend)
	}

	switch c.Presence.Backend {
	case PresenceMemory, PresenceDirectory:
	case PresenceRedis:
		if c.Presence.RedisAddr == "" {
			return fmt.Errorf("presence.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown presence.backend %q", c.Presence.Backend)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	return nil
}
