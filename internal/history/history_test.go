// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package history

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndReadBackOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Append out of chronological order; reads come back ordered.
	events := []WatchRecord{
		{EventID: "e2", UserID: "alice", VideoID: "v2", ClipID: "c2", WatchedSeconds: 8, OccurredAt: base.Add(time.Minute)},
		{EventID: "e1", UserID: "alice", VideoID: "v1", ClipID: "c1", WatchedSeconds: 5, OccurredAt: base},
		{EventID: "e3", UserID: "bob", VideoID: "v1", ClipID: "c1", WatchedSeconds: 3, OccurredAt: base},
	}
	for i := range events {
		if err := s.Append(ctx, &events[i]); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.ForUser(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "e1" || got[1].EventID != "e2" {
		t.Errorf("records = %v, want [e1 e2] oldest first", got)
	}
	if got[0].WatchedSeconds != 5 {
		t.Errorf("watched = %v, want 5", got[0].WatchedSeconds)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d,%v, want 3", n, err)
	}
}

func TestAppendDeduplicatesByEventID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := WatchRecord{EventID: "e1", UserID: "alice", VideoID: "v1", ClipID: "c1",
		WatchedSeconds: 5, OccurredAt: time.Now().UTC()}
	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, &rec); err != nil {
			t.Fatalf("redelivered append %d: %v", i, err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d,%v, want 1 after duplicate appends", n, err)
	}
}

func TestForUserLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		err := s.Append(ctx, &WatchRecord{
			EventID:    string(rune('a' + i)),
			UserID:     "alice",
			VideoID:    "v1",
			ClipID:     "c1",
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ForUser(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want limit 2", len(got))
	}
}
