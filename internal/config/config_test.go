package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Kind != "postgres" {
		t.Fatalf("store kind = %q", cfg.Store.Kind)
	}
	if cfg.Jobs.Workers != 4 || cfg.Jobs.QueueSize != 64 {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if cfg.Cleanup.JobRetention != 30*24*time.Hour {
		t.Fatalf("job retention = %s", cfg.Cleanup.JobRetention)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("metrics enabled by default")
	}
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataloft.yaml")
	body := strings.Join([]string{
		"server:",
		`  addr: ":9090"`,
		"store:",
		"  kind: sqlite",
		"  dsn: file:dataloft.db",
		"jobs:",
		"  workers: 2",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.DSN != "file:dataloft.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Jobs.Workers != 2 {
		t.Fatalf("workers = %d", cfg.Jobs.Workers)
	}
	// Untouched sections keep their defaults.
	if cfg.Meta.Driver != "postgres" {
		t.Fatalf("meta driver = %q", cfg.Meta.Driver)
	}
}

func TestLoad_EnvironmentOverlaysFile(t *testing.T) {
	t.Setenv("DATALOFT_STORE_KIND", "mssql")
	t.Setenv("DATALOFT_SERVER_READ_TIMEOUT", "45s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Kind != "mssql" {
		t.Fatalf("store kind = %q, want env override", cfg.Store.Kind)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Fatalf("read timeout = %s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestEnvToKey_FirstUnderscoreOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"DATALOFT_STORE_DSN":             "store.dsn",
		"DATALOFT_SERVER_READ_TIMEOUT":   "server.read_timeout",
		"DATALOFT_CLEANUP_JOB_RETENTION": "cleanup.job_retention",
		"DATALOFT_JOBS_QUEUE_SIZE":       "jobs.queue_size",
	}
	for in, want := range cases {
		if got := envToKey(in); got != want {
			t.Fatalf("envToKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"missing_store_kind", func(c *Config) { c.Store.Kind = "" }, "store.kind"},
		{"missing_store_dsn", func(c *Config) { c.Store.DSN = "" }, "store.dsn"},
		{"missing_meta_dsn", func(c *Config) { c.Meta.DSN = "" }, "meta.dsn"},
		{"zero_workers", func(c *Config) { c.Jobs.Workers = 0 }, "jobs.workers"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tc.errSub) {
				t.Fatalf("err = %v, want mention of %s", err, tc.errSub)
			}
		})
	}

	if err := Default().validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
