// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if !c.Database.InMemory && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required unless database.in_memory is set"))
	}

	if c.Taxonomy.Path == "" {
		errs = append(errs, errors.New("taxonomy.path is required"))
	}
	if c.Roles.Path == "" {
		errs = append(errs, errors.New("roles.path is required"))
	}

	if c.Affinity.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("affinity.window_size must be >= 1, got %d", c.Affinity.WindowSize))
	}
	if c.Affinity.RecomputeEvery < 0 {
		errs = append(errs, fmt.Errorf("affinity.recompute_every must be >= 0, got %d", c.Affinity.RecomputeEvery))
	}

	if c.API.DefaultPageSize < 1 {
		errs = append(errs, fmt.Errorf("api.default_page_size must be >= 1, got %d", c.API.DefaultPageSize))
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		errs = append(errs, fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize))
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
			errs = append(errs, errors.New("nats.url is required when nats.enabled is set"))
		}
		if c.NATS.Subscribers < 1 {
			errs = append(errs, fmt.Errorf("nats.subscribers must be >= 1, got %d", c.NATS.Subscribers))
		}
	}

	if c.Candidates.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("candidates.requests_per_second must be >= 0"))
	}

	return errors.Join(errs...)
}
