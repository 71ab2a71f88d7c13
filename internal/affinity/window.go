// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import (
	"fmt"
	"sort"

	"github.com/clipfolio/affinity-engine/internal/metrics"
)

// windowModifier returns the current modifier for a video in the window,
// or 0 and false if the video has no entry.
func windowModifier(window []WindowEntry, videoID string) (float64, bool) {
	for _, e := range window {
		if e.VideoID == videoID {
			return e.Modifier, true
		}
	}
	return 0, false
}

// upsertWindowEntry inserts or updates the entry for entry.VideoID, keeps
// the window ordered by timestamp ascending, and evicts oldest-first down
// to capacity. An updated entry moves to its new timestamp's position, so
// a refreshed video is as eviction-safe as a brand-new one.
func upsertWindowEntry(window []WindowEntry, entry WindowEntry, capacity int) []WindowEntry {
	out := window[:0]
	for _, e := range window {
		if e.VideoID != entry.VideoID {
			out = append(out, e)
		}
	}
	out = append(out, entry)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if capacity > 0 && len(out) > capacity {
		metrics.WindowEvictionsTotal.Add(float64(len(out) - capacity))
		out = out[len(out)-capacity:]
	}
	return out
}

// checkWindowCapacity verifies the persisted invariant. A violation means
// the stored record is corrupt.
func checkWindowCapacity(window []WindowEntry, capacity int) error {
	if capacity > 0 && len(window) > capacity {
		return fmt.Errorf("%w: %d entries, capacity %d", ErrWindowCapacity, len(window), capacity)
	}
	return nil
}
