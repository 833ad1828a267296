// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sceneflow-dev/sceneflow/pkg/hub"
)

// Config is the daemon configuration, populated from SCENEFLOW_*
// environment variables.
type Config struct {
	Address   string `env:"SCENEFLOW_ADDRESS" envDefault:":8080"`
	JWTSecret string `env:"SCENEFLOW_JWT_SECRET"`

	ReadTimeout       time.Duration `env:"SCENEFLOW_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `env:"SCENEFLOW_WRITE_TIMEOUT" envDefault:"10s"`
	HeartbeatInterval time.Duration `env:"SCENEFLOW_HEARTBEAT_INTERVAL" envDefault:"30s"`
	ShutdownTimeout   time.Duration `env:"SCENEFLOW_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	MaxMessageSize int64 `env:"SCENEFLOW_MAX_MESSAGE_SIZE" envDefault:"65536"`
	SendQueueSize  int   `env:"SCENEFLOW_SEND_QUEUE_SIZE" envDefault:"256"`

	// AllowAnyOrigin disables the same-origin check on WebSocket
	// upgrades. Development only.
	AllowAnyOrigin bool `env:"SCENEFLOW_ALLOW_ANY_ORIGIN" envDefault:"false"`

	LogLevel  string `env:"SCENEFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SCENEFLOW_LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks fields that have no usable default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: SCENEFLOW_JWT_SECRET is required")
	}
	return nil
}

// HubConfig converts to the hub's configuration.
func (c *Config) HubConfig() *hub.Config {
	hc := hub.DefaultConfig()
	hc.Address = c.Address
	hc.JWTSecret = []byte(c.JWTSecret)
	hc.ReadTimeout = c.ReadTimeout
	hc.WriteTimeout = c.WriteTimeout
	hc.HeartbeatInterval = c.HeartbeatInterval
	hc.ShutdownTimeout = c.ShutdownTimeout
	hc.MaxMessageSize = c.MaxMessageSize
	hc.SendQueueSize = c.SendQueueSize
	if c.AllowAnyOrigin {
		hc.CheckOrigin = func(*http.Request) bool { return true }
	}
	return hc
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
