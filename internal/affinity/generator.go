// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metadata"
	"github.com/clipfolio/affinity-engine/internal/metrics"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

// Generator derives video affinity vectors from catalog tags.
//
// Generation is binary: every editorial or inferred topic on the video gets
// affinity 1.0, everything else stays 0. Video affinities are materialized
// lazily, the first time a watch or recompute needs them.
type Generator struct {
	videos metadata.VideoProvider
	store  VideoStore
	tax    *taxonomy.Taxonomy
	logger zerolog.Logger
}

// NewGenerator creates a video affinity generator.
func NewGenerator(videos metadata.VideoProvider, store VideoStore, tax *taxonomy.Taxonomy) *Generator {
	return &Generator{
		videos: videos,
		store:  store,
		tax:    tax,
		logger: logging.WithComponent("affinity-generator"),
	}
}

// Ensure returns the stored video affinity record, generating and persisting
// it from catalog metadata when absent.
func (g *Generator) Ensure(ctx context.Context, videoID string) (*VideoRecord, error) {
	rec, err := g.store.GetVideo(ctx, videoID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return g.Generate(ctx, videoID)
}

// Generate builds the affinity vector for a video from its catalog tags and
// persists it. Existing complexities are preserved; affinities are replaced.
// Fails with ErrVideoNotFound when the catalog has no such video, and with
// ErrInvalidTopic when a tag falls outside the taxonomy.
func (g *Generator) Generate(ctx context.Context, videoID string) (*VideoRecord, error) {
	video, err := g.videos.Video(ctx, videoID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, fmt.Errorf("video %q: %w", videoID, ErrVideoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch video %q: %w", videoID, err)
	}

	affinities := make(Vector)
	for _, topic := range video.AllTopics() {
		if !g.tax.Contains(topic) {
			return nil, fmt.Errorf("video %q tag %q: %w", videoID, topic, ErrInvalidTopic)
		}
		affinities[topic] = 1.0
	}

	rec, err := g.store.UpsertVideo(ctx, videoID, func(r *VideoRecord) error {
		r.Affinities = affinities
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.VideoAffinityGenerations.Inc()
	g.logger.Debug().
		Str("video_id", videoID).
		Int("topics", len(affinities)).
		Msg("generated video affinity")
	return rec, nil
}
