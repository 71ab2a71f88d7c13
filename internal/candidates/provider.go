// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package candidates is the boundary to the external search/vector index.
//
// The index owns similarity computation; this package only consumes ordered
// (content ID, score) lists, joins them against catalog metadata, and
// paginates the result for feed assembly.
package candidates

import "context"

// Candidate is one entry of an index result: a content ID with the index's
// relevance score. Order within a result list is the index's ranking.
type Candidate struct {
	VideoID string  `json:"video_id"`
	Score   float64 `json:"score"`
}

// Provider returns ranked candidate lists from the external index.
type Provider interface {
	// ByTopic returns up to limit candidates for a topic, best first.
	ByTopic(ctx context.Context, topicID string, limit int) ([]Candidate, error)

	// BySimilarity returns up to limit candidates nearest to the given
	// affinity vector, best first.
	BySimilarity(ctx context.Context, vector map[string]float64, limit int) ([]Candidate, error)
}
