/*
config.go - TOML configuration for the points engine

PURPOSE:
  Loads server configuration from a TOML file with sensible defaults.
  Every field can also be overridden by command-line flags in
  cmd/server/main.go, so the file itself is optional.

EXAMPLE FILE:

  [server]
  port = 8080
  cors_origins = ["http://localhost:3000"]

  [storage]
  path = "points.db"

  [auth]
  admin_token = "change-me"

  [metrics]
  enabled = true
*/
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration tree.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Auth    AuthConfig    `toml:"auth"`
	Metrics MetricsConfig `toml:"metrics"`
}

type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	AdminToken string `toml:"admin_token"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Path: "points.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads a TOML config file. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must not be empty")
	}
	return nil
}
