// Package config loads service configuration from an optional YAML file
// overlaid with DATALOFT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment overlay:
// DATALOFT_STORE_DSN -> store.dsn.
const envPrefix = "DATALOFT_"

// Config is the full service configuration.
type Config struct {
	Server  Server  `koanf:"server"`
	Store   Store   `koanf:"store"`
	Meta    Meta    `koanf:"meta"`
	Staging Staging `koanf:"staging"`
	Jobs    Jobs    `koanf:"jobs"`
	Metrics Metrics `koanf:"metrics"`
	Cleanup Cleanup `koanf:"cleanup"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Store selects the dynamic-table backend.
type Store struct {
	Kind string `koanf:"kind"`
	DSN  string `koanf:"dsn"`
}

// Meta configures the metadata database.
type Meta struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// Staging configures the staged-file store.
type Staging struct {
	Dir string `koanf:"dir"`
}

// Jobs sizes the import worker pool.
type Jobs struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// Metrics configures the optional Datadog backend.
type Metrics struct {
	Enabled    bool          `koanf:"enabled"`
	Service    string        `koanf:"service"`
	Tags       string        `koanf:"tags"`
	FlushEvery time.Duration `koanf:"flush_every"`
}

// Cleanup configures the background maintenance tickers.
type Cleanup struct {
	UploadSweepEvery time.Duration `koanf:"upload_sweep_every"`
	JobRetention     time.Duration `koanf:"job_retention"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: Store{
			Kind: "postgres",
			DSN:  "postgres://localhost:5432/dataloft?sslmode=disable",
		},
		Meta: Meta{
			Driver: "postgres",
			DSN:    "postgres://localhost:5432/dataloft?sslmode=disable",
		},
		Staging: Staging{Dir: "/var/lib/dataloft/staging"},
		Jobs:    Jobs{Workers: 4, QueueSize: 64},
		Metrics: Metrics{
			Enabled:    false,
			Service:    "dataloft",
			FlushEvery: time.Minute,
		},
		Cleanup: Cleanup{
			UploadSweepEvery: 10 * time.Minute,
			JobRetention:     30 * 24 * time.Hour,
		},
	}
}

// Load reads path (when non-empty and present) and overlays the
// environment. Missing files are only an error when explicitly requested.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envToKey maps DATALOFT_STORE_DSN onto store.dsn. Only the first
// underscore separates the section; the rest of the name keeps its
// underscores so keys like read_timeout survive.
func envToKey(name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func (c Config) validate() error {
	if c.Store.Kind == "" {
		return fmt.Errorf("config: store.kind is required")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required")
	}
	if c.Meta.DSN == "" {
		return fmt.Errorf("config: meta.dsn is required")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("config: jobs.workers must be at least 1")
	}
	return nil
}
