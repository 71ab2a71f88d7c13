// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package eventprocessor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/clipfolio/affinity-engine/internal/config"
	"github.com/clipfolio/affinity-engine/internal/metrics"
)

// Publisher puts watch events on the bus with circuit breaker protection.
// Message IDs carry the event ID so JetStream deduplicates redeliveries.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	mu        sync.RWMutex
	closed    bool
	logger    watermill.LoggerAdapter
}

// NewPublisher creates a JetStream watch-event publisher.
func NewPublisher(cfg config.NATSConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watch-event publisher: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "watch-event-publisher",
	})

	return &Publisher{publisher: pub, breaker: breaker, logger: logger}, nil
}

// PublishWatchEvent validates and publishes one event.
func (p *Publisher) PublishWatchEvent(ctx context.Context, ev *WatchEvent) error {
	msg, err := ev.ToMessage()
	if err != nil {
		metrics.RecordBusMessage("publish", "invalid")
		return err
	}
	return p.Publish(ctx, TopicWatchEvents, msg)
}

// Publish sends a message with breaker protection. The message UUID becomes
// the Nats-Msg-Id for JetStream deduplication.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.RecordBusMessage("publish", "error")
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	metrics.RecordBusMessage("publish", "ok")
	return nil
}

// Close shuts the publisher down; further publishes fail fast.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
