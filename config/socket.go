package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// SocketConfig holds chat WebSocket server configuration.
type SocketConfig struct {
	ListenAddr      string        `env:"CHAT_LISTEN_ADDR" envDefault:":8080"`
	Path            string        `env:"CHAT_WS_PATH" envDefault:"/ws" validate:"startswith=/"`
	JWTSecret       string        `env:"CHAT_JWT_SECRET"`
	InternalKey     string        `env:"CHAT_INTERNAL_KEY"`
	MaxConnections  int           `env:"CHAT_MAX_CONNECTIONS" envDefault:"1000" validate:"min=0"`
	PingInterval    time.Duration `env:"CHAT_PING_INTERVAL" envDefault:"30s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	LookupTimeout   time.Duration `env:"CHAT_LOOKUP_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	ReadBufferSize  int           `env:"CHAT_READ_BUFFER_SIZE" envDefault:"1024" validate:"min=1"`
	WriteBufferSize int           `env:"CHAT_WRITE_BUFFER_SIZE" envDefault:"1024" validate:"min=1"`
	SendBufferSize  int           `env:"CHAT_SEND_BUFFER_SIZE" envDefault:"256" validate:"min=1"`
	MaxMessageSize  int64         `env:"CHAT_MAX_MESSAGE_SIZE" envDefault:"8192" validate:"min=1"`

	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
}

// DatabaseConfig selects the relational store holding users and conversations.
type DatabaseConfig struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite pgx"`
	DSN    string `env:"DATABASE_DSN" envDefault:"chat.db" validate:"required"`
}

// RedisConfig holds connection settings for the last-seen store.
// An empty Addr keeps last-seen times in memory.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0" validate:"min=0"`
	Prefix   string        `env:"REDIS_LASTSEEN_PREFIX" envDefault:"chat:lastseen:"`
	TTL      time.Duration `env:"REDIS_LASTSEEN_TTL" envDefault:"720h" validate:"gt=0"`
}

// LogConfig controls the root zerolog logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
}

// DefaultConfig returns the default chat socket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		ListenAddr:      ":8080",
		Path:            "/ws",
		MaxConnections:  1000,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		LookupTimeout:   5 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		MaxMessageSize:  8192,
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "chat.db",
		},
		Redis: RedisConfig{
			Prefix: "chat:lastseen:",
			TTL:    720 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// FromEnv loads configuration from environment variables on top of the defaults.
func FromEnv() (*SocketConfig, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *SocketConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("CHAT_JWT_SECRET is required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// PongWait is how long a connection may stay silent before it is considered dead.
func (c *SocketConfig) PongWait() time.Duration {
	return c.PingInterval * 2
}
