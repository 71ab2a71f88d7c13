// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package eventprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/history"
	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metrics"
)

// HistoryAppender is the audit-log sink; *history.Store satisfies it.
type HistoryAppender interface {
	Append(ctx context.Context, rec *history.WatchRecord) error
}

// Processor consumes watch events and feeds them into the affinity engine.
//
// Permanent failures (malformed events, unknown users/content) are acked so
// they never redeliver; transient failures are nacked for JetStream retry.
// Every recomputeEvery-th watch per user triggers a long-term recompute.
type Processor struct {
	subscriber     message.Subscriber
	engine         *affinity.Engine
	history        HistoryAppender
	recomputeEvery int
	logger         zerolog.Logger
}

// NewProcessor creates a watch-event processor. history may be nil to
// disable audit logging; recomputeEvery 0 disables automatic recompute.
func NewProcessor(sub message.Subscriber, engine *affinity.Engine, hist HistoryAppender, recomputeEvery int) *Processor {
	return &Processor{
		subscriber:     sub,
		engine:         engine,
		history:        hist,
		recomputeEvery: recomputeEvery,
		logger:         logging.WithComponent("watch-processor"),
	}
}

// Serve consumes watch events until ctx is canceled. It satisfies
// suture.Service so the supervisor restarts it on failure.
func (p *Processor) Serve(ctx context.Context) error {
	messages, err := p.subscriber.Subscribe(ctx, TopicWatchEvents)
	if err != nil {
		return err
	}

	p.logger.Info().Str("topic", TopicWatchEvents).Msg("watch-event processor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg *message.Message) {
	start := time.Now()
	defer func() {
		metrics.BusHandlerDuration.Observe(time.Since(start).Seconds())
	}()

	ev, err := WatchEventFromMessage(msg)
	if err != nil {
		// Poison message: redelivery cannot fix it.
		p.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed watch event")
		metrics.RecordBusMessage("consume", "invalid")
		metrics.RecordWatchEvent("invalid")
		msg.Ack()
		return
	}

	rec, err := p.engine.RecordWatch(ctx, ev.UserID, ev.VideoID, ev.ClipID, ev.WatchedSeconds)
	switch {
	case err == nil:
		metrics.RecordWatchEvent("ok")
	case isPermanent(err):
		p.logger.Warn().Err(err).
			Str("event_id", ev.EventID).
			Str("user_id", ev.UserID).
			Msg("dropping unprocessable watch event")
		metrics.RecordBusMessage("consume", "rejected")
		metrics.RecordWatchEvent("not_found")
		msg.Ack()
		return
	default:
		p.logger.Error().Err(err).
			Str("event_id", ev.EventID).
			Msg("transient watch processing failure, requeueing")
		metrics.RecordBusMessage("consume", "error")
		metrics.RecordWatchEvent("error")
		msg.Nack()
		return
	}

	if p.history != nil {
		hrec := &history.WatchRecord{
			EventID:        ev.EventID,
			UserID:         ev.UserID,
			VideoID:        ev.VideoID,
			ClipID:         ev.ClipID,
			WatchedSeconds: ev.WatchedSeconds,
			OccurredAt:     ev.OccurredAt,
		}
		// Audit logging is best-effort; the affinity update already landed.
		if err := p.history.Append(ctx, hrec); err != nil {
			p.logger.Warn().Err(err).Str("event_id", ev.EventID).Msg("watch history append failed")
		}
	}

	if p.recomputeEvery > 0 && rec.WatchesSinceRecompute >= p.recomputeEvery {
		recomputeStart := time.Now()
		if _, err := p.engine.RecomputeFromActive(ctx, ev.UserID); err != nil {
			p.logger.Error().Err(err).Str("user_id", ev.UserID).Msg("threshold recompute failed")
		} else {
			metrics.RecordRecompute("watch_threshold", time.Since(recomputeStart))
		}
	}

	metrics.RecordBusMessage("consume", "ok")
	msg.Ack()
}

// isPermanent reports whether a RecordWatch failure cannot be fixed by
// redelivery.
func isPermanent(err error) bool {
	return errors.Is(err, affinity.ErrUserAffinityNotFound) ||
		errors.Is(err, affinity.ErrVideoNotFound) ||
		errors.Is(err, affinity.ErrClipNotFound) ||
		errors.Is(err, affinity.ErrInvalidTopic) ||
		errors.Is(err, affinity.ErrInvalidValue)
}
