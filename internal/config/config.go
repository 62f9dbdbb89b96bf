package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/modqueue/modq/internal/logger"
	"github.com/modqueue/modq/internal/store"
	"github.com/modqueue/modq/internal/transport"
)

// TokenEnv is consulted when the transport section carries no token.
// Credentials belong in the environment, not in the config file.
const TokenEnv = "MODQ_TELEGRAM_TOKEN"

// ServerConfig configures the embedded HTTP API.
type ServerConfig struct {
	Listen   string `toml:"listen,omitempty" mapstructure:"listen"`
	BasePath string `toml:"base_path,omitempty" mapstructure:"base_path"`
}

// Config is the top-level TOML structure.
type Config struct {
	// Schedule is the poll period in "@every <duration>" form.
	Schedule string `toml:"schedule,omitempty" mapstructure:"schedule"`

	// StoreTimeout bounds each fetch and write-back so a slow store
	// cannot wedge decision handling.
	StoreTimeout  time.Duration `toml:"store_timeout,omitempty" mapstructure:"store_timeout"`
	WriteRetries  int           `toml:"write_retries,omitempty" mapstructure:"write_retries"`
	RetryInterval time.Duration `toml:"retry_interval,omitempty" mapstructure:"retry_interval"`

	Store     store.Config     `toml:"store" mapstructure:"store"`
	Transport transport.Config `toml:"transport" mapstructure:"transport"`
	Server    ServerConfig     `toml:"server,omitempty" mapstructure:"server"`
	Log       logger.Config    `toml:"log,omitempty" mapstructure:"log"`
}

// Default returns the built-in configuration. The original deployment
// polled every 300 seconds; 5m keeps that default.
func Default() Config {
	return Config{
		Schedule:      "@every 5m",
		StoreTimeout:  10 * time.Second,
		WriteRetries:  3,
		RetryInterval: 2 * time.Second,
		Store:         store.Config{Type: "sqlite"},
		Transport:     transport.Config{Type: "telegram"},
		Server:        ServerConfig{Listen: ":8080", BasePath: "/api"},
	}
}

// Load reads a TOML config file and applies defaults and the token env
// fallback. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if cfg.Transport.Token == "" {
		cfg.Transport.Token = os.Getenv(TokenEnv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants that do not need live
// collaborators. Credential and reachability checks happen at startup.
func (c *Config) Validate() error {
	if c.Schedule == "" {
		return fmt.Errorf("schedule must not be empty")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store_timeout must be > 0")
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("write_retries must be >= 1")
	}
	if c.Store.Type == "" {
		return fmt.Errorf("store.type is required")
	}
	return nil
}
