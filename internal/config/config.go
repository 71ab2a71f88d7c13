// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package config loads and validates service configuration.
//
// Configuration is resolved in three layers, later layers overriding earlier:
//
//  1. Compiled-in defaults (defaultConfig)
//  2. YAML config file (CONFIG_PATH or the DefaultConfigPaths search list)
//  3. Environment variables with the AFFINITY_ prefix, e.g.
//     AFFINITY_SERVER_PORT=8080 overrides server.port.
package config

import "time"

// Config is the root configuration for the affinity engine service.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	History    HistoryConfig    `koanf:"history"`
	NATS       NATSConfig       `koanf:"nats"`
	Taxonomy   TaxonomyConfig   `koanf:"taxonomy"`
	Roles      RolesConfig      `koanf:"roles"`
	Affinity   AffinityConfig   `koanf:"affinity"`
	API        APIConfig        `koanf:"api"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Candidates CandidatesConfig `koanf:"candidates"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds BadgerDB settings for the affinity document store.
type DatabaseConfig struct {
	// Path is the BadgerDB directory. Empty with InMemory=true runs fully
	// in memory (used in tests and ephemeral deployments).
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// HistoryConfig holds the DuckDB watch-history audit log settings.
type HistoryConfig struct {
	Enabled bool `koanf:"enabled"`
	// Path is the DuckDB database file. Empty opens an in-memory database.
	Path string `koanf:"path"`
}

// NATSConfig holds the watch-event bus settings.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// StreamName binds the subscriber to a pre-provisioned stream. Empty
	// lets the transport auto-provision one from the subject.
	StreamName string `koanf:"stream_name"`

	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	Subscribers    int           `koanf:"subscribers"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
	MaxDeliver     int           `koanf:"max_deliver"`
	MaxAckPending  int           `koanf:"max_ack_pending"`
}

// TaxonomyConfig points at the closed topic taxonomy definition.
type TaxonomyConfig struct {
	Path string `koanf:"path"`
}

// RolesConfig points at the static role weight table definition.
type RolesConfig struct {
	Path string `koanf:"path"`
}

// AffinityConfig holds tunables for the affinity update algorithm.
// The algorithm's blend constants are fixed in the affinity package;
// only capacity and trigger cadence are deployment concerns.
type AffinityConfig struct {
	// WindowSize caps the active affinity window (MAX_ACTIVE_AFFINITIES).
	WindowSize int `koanf:"window_size"`

	// RecomputeEvery triggers a recompute after this many watch events
	// per user when events arrive via the bus. 0 disables the trigger.
	RecomputeEvery int `koanf:"recompute_every"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// CatalogConfig holds the external video/clip/user metadata service settings.
type CatalogConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// CandidatesConfig holds the external ranked-candidate index settings.
type CandidatesConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond rate-limits calls to the index. 0 disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Circuit breaker settings
	BreakerMaxFailures  uint32        `koanf:"breaker_max_failures"`
	BreakerOpenInterval time.Duration `koanf:"breaker_open_interval"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8435,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:     "/data/affinity",
			InMemory: false,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "/data/history.duckdb",
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "",
			DurableName:    "affinity-engine",
			QueueGroup:     "affinity",
			Subscribers:    4,
			MaxReconnects:  -1, // retry forever
			ReconnectWait:  2 * time.Second,
			AckWaitTimeout: 30 * time.Second,
			CloseTimeout:   30 * time.Second,
			MaxDeliver:     5,
			MaxAckPending:  256,
		},
		Taxonomy: TaxonomyConfig{
			Path: "taxonomy.yaml",
		},
		Roles: RolesConfig{
			Path: "roles.yaml",
		},
		Affinity: AffinityConfig{
			WindowSize:     30,
			RecomputeEvery: 10,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Catalog: CatalogConfig{
			BaseURL: "http://localhost:8040",
			Timeout: 10 * time.Second,
		},
		Candidates: CandidatesConfig{
			BaseURL:             "http://localhost:8050",
			Timeout:             10 * time.Second,
			RequestsPerSecond:   25,
			BreakerMaxFailures:  5,
			BreakerOpenInterval: 30 * time.Second,
		},
	}
}
