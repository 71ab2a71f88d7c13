// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package candidates

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metadata"
	"github.com/clipfolio/affinity-engine/internal/ranking"
)

// FeedItem is one resolved entry of an explore-feed page.
type FeedItem struct {
	VideoID string  `json:"video_id"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
	Topic   string  `json:"topic"`
}

// FeedPage is one assembled explore-feed page.
type FeedPage struct {
	Page  int        `json:"page"`
	Role  string     `json:"role,omitempty"`
	Topic string     `json:"topic,omitempty"`
	Items []FeedItem `json:"items"`
}

// Resolver turns ranked feed selections into resolved content pages. It
// joins index candidate IDs against catalog metadata, silently dropping
// candidates the catalog no longer knows (the index lags deletions).
type Resolver struct {
	index  Provider
	videos metadata.VideoProvider
	ranker *ranking.Ranker
	logger zerolog.Logger
}

// NewResolver creates a feed resolver.
func NewResolver(index Provider, videos metadata.VideoProvider, ranker *ranking.Ranker) *Resolver {
	return &Resolver{
		index:  index,
		videos: videos,
		ranker: ranker,
		logger: logging.WithComponent("feed-resolver"),
	}
}

// overfetchFactor pads the index query so dropped (deleted) candidates still
// leave a full page.
const overfetchFactor = 2

// Feed assembles one explore-feed page: the ranker picks the page's role and
// topic, the index supplies ranked candidates for that topic, and each
// candidate is resolved against the catalog.
func (r *Resolver) Feed(ctx context.Context, userID string, page, pageSize int) (*FeedPage, error) {
	sel, err := r.ranker.SelectFeedTopics(ctx, userID, page)
	if err != nil {
		return nil, err
	}

	items, err := r.resolveTopic(ctx, sel.Topic, pageSize)
	if err != nil {
		return nil, err
	}

	return &FeedPage{Page: page, Role: sel.Role, Topic: sel.Topic, Items: items}, nil
}

// ByTopic resolves a plain topic candidate list without feed selection.
func (r *Resolver) ByTopic(ctx context.Context, topicID string, limit int) ([]FeedItem, error) {
	return r.resolveTopic(ctx, topicID, limit)
}

// Similar resolves candidates nearest to an affinity vector.
func (r *Resolver) Similar(ctx context.Context, vector map[string]float64, limit int) ([]FeedItem, error) {
	cands, err := r.index.BySimilarity(ctx, vector, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	return r.join(ctx, cands, "", limit)
}

func (r *Resolver) resolveTopic(ctx context.Context, topicID string, limit int) ([]FeedItem, error) {
	cands, err := r.index.ByTopic(ctx, topicID, limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("topic query %q: %w", topicID, err)
	}
	return r.join(ctx, cands, topicID, limit)
}

// join resolves candidate IDs against the catalog, preserving index order.
func (r *Resolver) join(ctx context.Context, cands []Candidate, topicID string, limit int) ([]FeedItem, error) {
	items := make([]FeedItem, 0, min(limit, len(cands)))
	for _, cand := range cands {
		if len(items) >= limit {
			break
		}

		video, err := r.videos.Video(ctx, cand.VideoID)
		if errors.Is(err, metadata.ErrNotFound) {
			r.logger.Debug().
				Str("video_id", cand.VideoID).
				Msg("dropping stale index candidate")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve candidate %q: %w", cand.VideoID, err)
		}

		items = append(items, FeedItem{
			VideoID: video.ID,
			Title:   video.Title,
			Score:   cand.Score,
			Topic:   topicID,
		})
	}
	return items, nil
}
