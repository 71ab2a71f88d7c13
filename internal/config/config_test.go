// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Affinity.WindowSize != 30 {
		t.Errorf("default window size = %d, want 30", cfg.Affinity.WindowSize)
	}
	if cfg.Server.Port != 8435 {
		t.Errorf("default port = %d, want 8435", cfg.Server.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
logging:
  level: debug
affinity:
  window_size: 12
  recompute_every: 5
taxonomy:
  path: /etc/affinity/taxonomy.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Affinity.WindowSize != 12 {
		t.Errorf("window size = %d, want 12", cfg.Affinity.WindowSize)
	}
	if cfg.Taxonomy.Path != "/etc/affinity/taxonomy.yaml" {
		t.Errorf("taxonomy path = %q", cfg.Taxonomy.Path)
	}
	// Untouched sections keep defaults.
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("read timeout = %v, want default 15s", cfg.Server.ReadTimeout)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AFFINITY_SERVER_PORT", "7777")
	t.Setenv("AFFINITY_WINDOW_SIZE", "8")
	t.Setenv("AFFINITY_LOG_LEVEL", "warn")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777 from env", cfg.Server.Port)
	}
	if cfg.Affinity.WindowSize != 8 {
		t.Errorf("window size = %d, want 8 from env", cfg.Affinity.WindowSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn from env", cfg.Logging.Level)
	}
}

func TestUnknownEnvIgnored(t *testing.T) {
	t.Setenv("AFFINITY_NO_SUCH_KEY", "x")

	if _, err := LoadFrom(""); err != nil {
		t.Fatalf("unknown env vars must be ignored: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero window", func(c *Config) { c.Affinity.WindowSize = 0 }},
		{"negative recompute", func(c *Config) { c.Affinity.RecomputeEvery = -1 }},
		{"no taxonomy path", func(c *Config) { c.Taxonomy.Path = "" }},
		{"no roles path", func(c *Config) { c.Roles.Path = "" }},
		{"no db path", func(c *Config) { c.Database.Path = ""; c.Database.InMemory = false }},
		{"max < default page size", func(c *Config) { c.API.MaxPageSize = 5; c.API.DefaultPageSize = 10 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
