// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package main is the entry point for the affinity engine server.
//
// The server tracks per-user topic affinity from clip watch events and
// serves role/topic rankings and ranked content feeds over HTTP.
//
// # Application Architecture
//
// Components initialize in the following order:
//
//  1. Configuration: defaults, YAML file, AFFINITY_* env overrides (Koanf v2)
//  2. Taxonomy and role weight tables from their YAML definitions
//  3. BadgerDB document store for user and video affinity records
//  4. Catalog client for video/clip/user metadata lookups
//  5. DuckDB watch history audit log (optional)
//  6. Candidate index client with rate limiting and circuit breaking
//  7. NATS JetStream watch-event bus (optional, embedded or external)
//  8. HTTP API under a suture supervision tree
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the supervisor tree stops
// the HTTP server and the event processor, then storage closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/api"
	"github.com/clipfolio/affinity-engine/internal/candidates"
	"github.com/clipfolio/affinity-engine/internal/config"
	"github.com/clipfolio/affinity-engine/internal/history"
	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metadata"
	"github.com/clipfolio/affinity-engine/internal/ranking"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, use the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("db_in_memory", cfg.Database.InMemory).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("history_enabled", cfg.History.Enabled).
		Msg("Configuration loaded")

	tax, err := taxonomy.Load(cfg.Taxonomy.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Taxonomy.Path).Msg("Failed to load taxonomy")
	}
	logging.Info().Int("topics", tax.Size()).Msg("Taxonomy loaded")

	table, err := ranking.LoadTable(cfg.Roles.Path, tax)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Roles.Path).Msg("Failed to load role weight table")
	}
	logging.Info().Int("roles", table.Len()).Msg("Role weight table loaded")

	store, err := affinity.OpenBadgerStore(cfg.Database.Path, cfg.Database.InMemory)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open affinity store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing affinity store")
		}
	}()

	catalog := metadata.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	gen := affinity.NewGenerator(catalog, store, tax)
	engine := affinity.NewEngine(store, gen, catalog, tax, cfg.Affinity.WindowSize)
	ranker := ranking.NewRanker(table, store, tax)

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.History.Path).Msg("Failed to open watch history")
		}
		defer func() {
			if err := hist.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing watch history")
			}
		}()
		logging.Info().Str("path", cfg.History.Path).Msg("Watch history enabled")
	}

	index := candidates.NewHTTPClient(candidates.HTTPClientConfig{
		BaseURL:             cfg.Candidates.BaseURL,
		Timeout:             cfg.Candidates.Timeout,
		RequestsPerSecond:   cfg.Candidates.RequestsPerSecond,
		BreakerMaxFailures:  cfg.Candidates.BreakerMaxFailures,
		BreakerOpenInterval: cfg.Candidates.BreakerOpenInterval,
	})
	resolver := candidates.NewResolver(index, catalog, ranker)

	server := api.NewServer(engine, ranker, resolver, hist, tax, cfg.API)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	supervisor := suture.New("affinity-engine", suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   cfg.Server.ShutdownTimeout,
	})

	natsComponents, err := initNATS(cfg, engine, hist, server)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS event processing")
	}
	if natsComponents != nil {
		supervisor.Add(natsComponents.processor)
		defer natsComponents.Shutdown()
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	supervisor.Add(&httpService{server: httpSrv, shutdownTimeout: cfg.Server.ShutdownTimeout})

	logging.Info().Str("addr", httpSrv.Addr).Msg("Starting affinity engine")
	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor exited with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Shutdown complete")
}

// httpService adapts http.Server to suture.Service.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
