// Package config loads nestsync settings from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client configures the local-first session used by the nestsync CLI and SDK.
type Client struct {
	// StoreURL is the base URL of nestsync-stored. Empty runs the session in local-only mode.
	StoreURL      string        `env:"NESTSYNC_STORE_URL"`
	CacheDir      string        `env:"NESTSYNC_CACHE_DIR"      envDefault:"./cache"`
	CacheKey      string        `env:"NESTSYNC_CACHE_KEY"`
	Timeout       time.Duration `env:"NESTSYNC_TIMEOUT"        envDefault:"10s"`
	Debounce      time.Duration `env:"NESTSYNC_DEBOUNCE"       envDefault:"1s"`
	MessageWindow time.Duration `env:"NESTSYNC_MESSAGE_WINDOW" envDefault:"24h"`
	PageSize      int           `env:"NESTSYNC_PAGE_SIZE"      envDefault:"50"`
	LogLevel      string        `env:"NESTSYNC_LOG_LEVEL"      envDefault:"info"`
	// TLSInsecure skips certificate verification, for a store serving a self-signed cert.
	TLSInsecure   bool          `env:"NESTSYNC_TLS_INSECURE"`
}

// Server configures nestsync-stored.
type Server struct {
	HTTPPort        string        `env:"NESTSYNC_HTTP_PORT"        envDefault:"7002"`
	DBDriver        string        `env:"NESTSYNC_DB_DRIVER"        envDefault:"sqlite"`
	DBDSN           string        `env:"NESTSYNC_DB_DSN"           envDefault:"./data/nestsync.db"`
	MaxPageSize     int           `env:"NESTSYNC_MAX_PAGE_SIZE"    envDefault:"50"`
	ShutdownTimeout time.Duration `env:"NESTSYNC_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"NESTSYNC_LOG_LEVEL"        envDefault:"info"`
	// TLS serves the API over TLS with a self-signed certificate generated at startup.
	TLS             bool          `env:"NESTSYNC_TLS"`
}

// LoadClient parses the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// LoadServer parses the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Server{}, fmt.Errorf("unsupported NESTSYNC_DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.MaxPageSize <= 0 {
		return Server{}, fmt.Errorf("NESTSYNC_MAX_PAGE_SIZE must be positive")
	}
	return cfg, nil
}

// Validate checks the client configuration for values the session cannot run with.
func (c Client) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("NESTSYNC_CACHE_DIR is required")
	}
	if c.CacheKey != "" && len(c.CacheKey) != 32 {
		return fmt.Errorf("NESTSYNC_CACHE_KEY must be 32 bytes, got %d", len(c.CacheKey))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("NESTSYNC_TIMEOUT must be positive")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("NESTSYNC_DEBOUNCE must not be negative")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("NESTSYNC_PAGE_SIZE must be positive")
	}
	return nil
}
