// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package eventprocessor moves watch events through NATS JetStream.
//
// Player clients publish watch events onto the bus; the processor consumes
// them, records each watch into the affinity engine, appends an audit copy
// to the history log, and triggers long-term recomputation every N watches.
package eventprocessor

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TopicWatchEvents is the JetStream subject watch events travel on.
const TopicWatchEvents = "watch.events"

// WatchEvent is one completed (or abandoned) clip playback.
type WatchEvent struct {
	// EventID deduplicates redeliveries end to end; it doubles as the
	// NATS message ID.
	EventID string `json:"event_id"`

	UserID  string `json:"user_id"`
	VideoID string `json:"video_id"`
	ClipID  string `json:"clip_id"`

	// WatchedSeconds is how long the user actually watched.
	WatchedSeconds float64 `json:"watched_seconds"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewWatchEvent builds an event with a fresh ID and timestamp.
func NewWatchEvent(userID, videoID, clipID string, watchedSeconds float64) *WatchEvent {
	return &WatchEvent{
		EventID:        uuid.New().String(),
		UserID:         userID,
		VideoID:        videoID,
		ClipID:         clipID,
		WatchedSeconds: watchedSeconds,
		OccurredAt:     time.Now().UTC(),
	}
}

// Validate checks the event's structural invariants before it goes on or
// comes off the bus.
func (e *WatchEvent) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("watch event missing event_id")
	case e.UserID == "":
		return fmt.Errorf("watch event %s missing user_id", e.EventID)
	case e.VideoID == "":
		return fmt.Errorf("watch event %s missing video_id", e.EventID)
	case e.ClipID == "":
		return fmt.Errorf("watch event %s missing clip_id", e.EventID)
	case e.WatchedSeconds < 0:
		return fmt.Errorf("watch event %s has negative watched_seconds", e.EventID)
	case e.OccurredAt.IsZero():
		return fmt.Errorf("watch event %s missing occurred_at", e.EventID)
	}
	return nil
}

// ToMessage serializes the event into a watermill message keyed by EventID.
func (e *WatchEvent) ToMessage() (*message.Message, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal watch event: %w", err)
	}
	return message.NewMessage(e.EventID, payload), nil
}

// WatchEventFromMessage deserializes and validates a bus message.
func WatchEventFromMessage(msg *message.Message) (*WatchEvent, error) {
	var ev WatchEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal watch event %s: %w", msg.UUID, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
