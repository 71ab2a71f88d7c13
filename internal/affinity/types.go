// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package affinity implements per-user and per-video topic affinity vectors,
// the bounded active-affinity window, and the watch-driven update algorithm
// that blends recent watches into long-term affinity.
//
// Vectors are persisted sparsely: a topic absent from the map has value 0.
// This keeps stored documents small (most users touch a handful of topics)
// and survives taxonomy extension without migration. Recompute hot paths
// expand into dense slices indexed by taxonomy position.
package affinity

import (
	"math"
	"time"
)

// Vector maps topic IDs to values in [0, 1]. Absent topics are 0.
type Vector map[string]float64

// Get returns the value for a topic, 0 if absent.
func (v Vector) Get(topic string) float64 {
	return v[topic]
}

// Set stores a value, removing the key when the value is 0 so that the
// sparse representation stays canonical.
func (v Vector) Set(topic string, value float64) {
	if value == 0 {
		delete(v, topic)
		return
	}
	v[topic] = value
}

// Clone returns a deep copy. Clone of nil is an empty, usable Vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// WindowEntry is one (video, modifier, timestamp) triple in a user's active
// affinity window.
type WindowEntry struct {
	VideoID   string    `json:"video_id"`
	Modifier  float64   `json:"modifier"`
	Timestamp time.Time `json:"timestamp"`
}

// UserRecord is the persisted per-user affinity document. The long-term
// vectors and the active window live in the same record so every mutation
// is a single-document read-modify-write.
type UserRecord struct {
	UserID       string `json:"user_id"`
	Affinities   Vector `json:"affinities"`
	Complexities Vector `json:"complexities"`

	// Window holds recent watches ordered by timestamp ascending, capped at
	// the configured capacity.
	Window []WindowEntry `json:"window,omitempty"`

	// ActiveTopics is the append-only set of topic IDs touched by recent
	// watches, cleared only by an explicit window reset.
	ActiveTopics []string `json:"active_topics,omitempty"`

	// WatchesSinceRecompute counts recorded watches since the last blend
	// into long-term affinity, used by callers to trigger recomputation.
	WatchesSinceRecompute int `json:"watches_since_recompute,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// VideoRecord is the persisted per-video affinity document. Affinities are
// generated from catalog tags (1.0 per tagged topic); complexities start at
// zero and are set editorially.
type VideoRecord struct {
	VideoID      string    `json:"video_id"`
	Affinities   Vector    `json:"affinities"`
	Complexities Vector    `json:"complexities"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasActiveTopic reports whether the topic is already in the ActiveTopics set.
func (u *UserRecord) HasActiveTopic(topic string) bool {
	for _, t := range u.ActiveTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// validValue reports whether v is a finite number in [0, 1].
func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}
