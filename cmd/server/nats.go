// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package main

import (
	"context"
	"fmt"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/api"
	"github.com/clipfolio/affinity-engine/internal/config"
	"github.com/clipfolio/affinity-engine/internal/eventprocessor"
	"github.com/clipfolio/affinity-engine/internal/history"
	"github.com/clipfolio/affinity-engine/internal/logging"
)

// natsComponents holds the watch-event bus pieces for lifecycle management.
type natsComponents struct {
	server     *eventprocessor.EmbeddedServer
	publisher  *eventprocessor.Publisher
	subscriber *eventprocessor.Subscriber
	processor  *eventprocessor.Processor
	cfg        config.NATSConfig
}

// initNATS wires the watch-event bus when NATS is enabled. It starts the
// embedded server if configured, connects publisher and subscriber, builds
// the processor, and switches the HTTP watch endpoint into bus mode.
// Returns nil when NATS is disabled.
func initNATS(cfg *config.Config, engine *affinity.Engine, hist *history.Store, server *api.Server) (*natsComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("Watch-event bus disabled")
		return nil, nil
	}

	components := &natsComponents{cfg: cfg.NATS}
	natsCfg := cfg.NATS

	if natsCfg.EmbeddedServer {
		embedded, err := eventprocessor.NewEmbeddedServer("127.0.0.1", 4222, natsCfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		components.server = embedded
		natsCfg.URL = embedded.ClientURL()
		logging.Info().Str("url", natsCfg.URL).Msg("Embedded NATS server started")
	}

	publisher, err := eventprocessor.NewPublisher(natsCfg, nil)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.publisher = publisher

	subscriber, err := eventprocessor.NewSubscriber(natsCfg, nil)
	if err != nil {
		components.Shutdown()
		return nil, err
	}
	components.subscriber = subscriber

	var appender eventprocessor.HistoryAppender
	if hist != nil {
		appender = hist
	}
	components.processor = eventprocessor.NewProcessor(subscriber, engine, appender, cfg.Affinity.RecomputeEvery)

	server.SetWatchPublisher(publisher)
	logging.Info().
		Str("url", natsCfg.URL).
		Int("recompute_every", cfg.Affinity.RecomputeEvery).
		Msg("Watch-event bus initialized")

	return components, nil
}

// Shutdown closes the bus components in consume-to-transport order.
func (c *natsComponents) Shutdown() {
	if c == nil {
		return
	}
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing watch-event subscriber")
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing watch-event publisher")
		}
	}
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CloseTimeout)
		defer cancel()
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
	}
}
