// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL       = "https://api.gamepromo.io"
	DefaultTimeout       = 30 * time.Second
	DefaultLoginCooldown = 3 * time.Second
	DefaultStaggerMax    = 5 * time.Second
	DefaultCatalogPath   = "games.json"
)

// Config is the root configuration structure.
type Config struct {
	Catalog string        `yaml:"catalog"`
	Game    string        `yaml:"game"`
	Run     RunConfig     `yaml:"run"`
	API     APIConfig     `yaml:"api"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RunConfig controls the size and pacing of a batch.
type RunConfig struct {
	Workers       int           `yaml:"workers"`
	KeysPerWorker int           `yaml:"keysPerWorker"`
	MinDelay      time.Duration `yaml:"minDelay"`      // floor for the delay before each registration attempt
	Stagger       bool          `yaml:"stagger"`       // random start offset per worker
	StaggerMax    time.Duration `yaml:"staggerMax"`
	LoginCooldown time.Duration `yaml:"loginCooldown"` // wait after a failed login
}

// APIConfig points the client at the promo service.
type APIConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	RPS     int           `yaml:"rps"` // shared request cap across workers, 0 = unlimited
}

// StoreConfig selects the dedup store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite3, postgres, mysql
	DSN    string `yaml:"dsn"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Catalog == "" {
		c.Catalog = DefaultCatalogPath
	}
	if c.Run.Workers == 0 {
		c.Run.Workers = 1
	}
	if c.Run.KeysPerWorker == 0 {
		c.Run.KeysPerWorker = 1
	}
	if c.Run.StaggerMax == 0 {
		c.Run.StaggerMax = DefaultStaggerMax
	}
	if c.Run.LoginCooldown == 0 {
		c.Run.LoginCooldown = DefaultLoginCooldown
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Workers < 1 {
		errs = append(errs, fmt.Errorf("run.workers must be >= 1, got %d", c.Run.Workers))
	}
	if c.Run.KeysPerWorker < 1 {
		errs = append(errs, fmt.Errorf("run.keysPerWorker must be >= 1, got %d", c.Run.KeysPerWorker))
	}
	if c.Run.MinDelay < 0 {
		errs = append(errs, fmt.Errorf("run.minDelay must not be negative, got %v", c.Run.MinDelay))
	}
	if c.Run.StaggerMax < 0 {
		errs = append(errs, fmt.Errorf("run.staggerMax must not be negative, got %v", c.Run.StaggerMax))
	}
	if c.API.RPS < 0 {
		errs = append(errs, fmt.Errorf("api.rps must not be negative, got %d", c.API.RPS))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "postgres", "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	return errors.Join(errs...)
}
