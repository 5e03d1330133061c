package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Sources string `yaml:"sources" json:"sources" jsonschema:"default=urls,description=Path to the feed source list (one URL per line)"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:newsyacht.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Update struct {
		Concurrency  int           `yaml:"concurrency" json:"concurrency" jsonschema:"default=4,description=Maximum simultaneous feed fetches"`
		Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=10s,description=Per-request fetch timeout"`
		UserAgent    string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=newsyacht/1.0,description=User agent for feed requests"`
		MaxBodySize  int64         `yaml:"max_body_size" json:"max_body_size" jsonschema:"default=10485760,description=Maximum feed document size in bytes"`
		MaxRedirects int           `yaml:"max_redirects" json:"max_redirects" jsonschema:"default=5,description=Maximum redirects followed per fetch"`
	} `yaml:"update" json:"update" jsonschema:"description=Feed update configuration"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()

	return &cfg, nil
}

// Default returns a config with all defaults applied, used when no config
// file is present
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Sources == "" {
		c.Sources = "urls"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Database.DSN == "" {
		c.Database.DSN = "file:newsyacht.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	if c.Update.Concurrency == 0 {
		c.Update.Concurrency = 4
	}
	if c.Update.Timeout == 0 {
		c.Update.Timeout = 10 * time.Second
	}
	if c.Update.UserAgent == "" {
		c.Update.UserAgent = "newsyacht/1.0"
	}
	if c.Update.MaxBodySize == 0 {
		c.Update.MaxBodySize = 10 * 1024 * 1024
	}
	if c.Update.MaxRedirects == 0 {
		c.Update.MaxRedirects = 5
	}
}

// Validate checks the config for values the rest of the system can't work with
func (c *Config) Validate() error {
	if c.Sources == "" {
		return fmt.Errorf("sources path is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Update.Concurrency < 1 {
		return fmt.Errorf("update.concurrency must be positive")
	}
	if c.Update.MaxBodySize < 1 {
		return fmt.Errorf("update.max_body_size must be positive")
	}
	return nil
}
