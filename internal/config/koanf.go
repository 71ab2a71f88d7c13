// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/affinity-engine/config.yaml",
	"/etc/affinity-engine/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces environment variable overrides.
const envPrefix = "AFFINITY_"

// Load resolves configuration from defaults, an optional YAML file, and
// AFFINITY_-prefixed environment variables, then validates the result.
func Load() (*Config, error) {
	return LoadFrom(resolveConfigPath())
}

// LoadFrom loads configuration with an explicit config file path.
// An empty path skips the file layer entirely.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKeyMap maps AFFINITY_-prefixed environment variables (lowercased, prefix
// stripped) to config paths. Only keys listed here can be overridden from the
// environment; a naive underscore-to-dot transform would mangle multi-word
// keys like read_timeout.
var envKeyMap = map[string]string{
	"server_host":                "server.host",
	"server_port":                "server.port",
	"server_read_timeout":        "server.read_timeout",
	"server_write_timeout":       "server.write_timeout",
	"server_shutdown_timeout":    "server.shutdown_timeout",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"database_path":              "database.path",
	"database_in_memory":         "database.in_memory",
	"history_enabled":            "history.enabled",
	"history_path":               "history.path",
	"nats_enabled":               "nats.enabled",
	"nats_url":                   "nats.url",
	"nats_embedded_server":       "nats.embedded_server",
	"nats_store_dir":             "nats.store_dir",
	"nats_stream_name":           "nats.stream_name",
	"taxonomy_path":              "taxonomy.path",
	"roles_path":                 "roles.path",
	"window_size":                "affinity.window_size",
	"recompute_every":            "affinity.recompute_every",
	"catalog_base_url":           "catalog.base_url",
	"catalog_timeout":            "catalog.timeout",
	"candidates_base_url":        "candidates.base_url",
	"candidates_timeout":         "candidates.timeout",
	"api_rate_limit_reqs":        "api.rate_limit_reqs",
	"api_default_page_size":      "api.default_page_size",
	"api_max_page_size":          "api.max_page_size",
}

// envTransform maps an environment variable name to its config path.
// Unknown variables are dropped.
func envTransform(key string) string {
	short := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return envKeyMap[short]
}

// resolveConfigPath returns the config file to use, or empty if none exists.
func resolveConfigPath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
