// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package history keeps an append-only audit log of watch events in DuckDB.
//
// The log is a sink, not the engine's source of truth: the affinity store
// never reads it. It exists for offline analysis and for replaying watches
// into a fresh affinity store.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
)

// WatchRecord is one appended watch event.
type WatchRecord struct {
	EventID        string
	UserID         string
	VideoID        string
	ClipID         string
	WatchedSeconds float64
	OccurredAt     time.Time
}

// Store is the DuckDB-backed watch log.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates (or opens) the watch log at path; an empty path opens an
// in-memory database, used in tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open watch log: %w", err)
	}

	s := &Store{db: db, logger: logging.WithComponent("watch-history")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS watch_events (
			event_id        VARCHAR PRIMARY KEY,
			user_id         VARCHAR NOT NULL,
			video_id        VARCHAR NOT NULL,
			clip_id         VARCHAR NOT NULL,
			watched_seconds DOUBLE NOT NULL,
			occurred_at     TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create watch_events table: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one watch event. Duplicate event IDs are skipped silently,
// so redelivered bus messages do not double-log.
func (s *Store) Append(ctx context.Context, rec *WatchRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_events (event_id, user_id, video_id, clip_id, watched_seconds, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.UserID, rec.VideoID, rec.ClipID, rec.WatchedSeconds, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("append watch event %s: %w", rec.EventID, err)
	}
	return nil
}

// ForUser returns a user's watch events ordered oldest first, capped at
// limit (0 means no cap).
func (s *Store) ForUser(ctx context.Context, userID string, limit int) ([]WatchRecord, error) {
	query := `
		SELECT event_id, user_id, video_id, clip_id, watched_seconds, occurred_at
		FROM watch_events
		WHERE user_id = ?
		ORDER BY occurred_at, event_id`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query watch events for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []WatchRecord
	for rows.Next() {
		var rec WatchRecord
		if err := rows.Scan(&rec.EventID, &rec.UserID, &rec.VideoID, &rec.ClipID,
			&rec.WatchedSeconds, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan watch event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of logged events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM watch_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count watch events: %w", err)
	}
	return n, nil
}
