// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

// RankedRole is a role with its affinity-weighted score.
type RankedRole struct {
	Role  string  `json:"role"`
	Name  string  `json:"name,omitempty"`
	Score float64 `json:"score"`
}

// RankedTopic is a topic with the user's affinity for it.
type RankedTopic struct {
	Topic    string  `json:"topic"`
	Name     string  `json:"name,omitempty"`
	Affinity float64 `json:"affinity"`
}

// FeedSelection names the role and topic chosen for one explore-feed page.
type FeedSelection struct {
	Role  string `json:"role"`
	Topic string `json:"topic"`
	Page  int    `json:"page"`
}

// Ranker scores roles and topics for a user. It reads affinity records but
// never mutates them.
type Ranker struct {
	table  *WeightTable
	users  affinity.UserStore
	tax    *taxonomy.Taxonomy
	logger zerolog.Logger
}

// NewRanker creates a ranker over the given weight table and user store.
func NewRanker(table *WeightTable, users affinity.UserStore, tax *taxonomy.Taxonomy) *Ranker {
	return &Ranker{
		table:  table,
		users:  users,
		tax:    tax,
		logger: logging.WithComponent("ranker"),
	}
}

func (r *Ranker) userRecord(ctx context.Context, userID string) (*affinity.UserRecord, error) {
	rec, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, affinity.ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, affinity.ErrUserAffinityNotFound)
	}
	return rec, err
}

// RankRoles scores every role in the weight table against the user's
// affinity vector and returns roles in descending score order. Each role's
// score sums weight * affinity over only the topics the role declares. Ties
// keep table declaration order (stable sort).
func (r *Ranker) RankRoles(ctx context.Context, userID string) ([]RankedRole, error) {
	rec, err := r.userRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]RankedRole, 0, r.table.Len())
	for _, role := range r.table.Roles() {
		var score float64
		for topic, weight := range role.Weights {
			score += weight * rec.Affinities.Get(topic)
		}
		out = append(out, RankedRole{Role: role.Role, Name: role.Name, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// RankTopics returns the user's topics in descending affinity order, capped
// at limit (0 means no cap). Only topics with nonzero affinity appear; ties
// keep taxonomy declaration order.
func (r *Ranker) RankTopics(ctx context.Context, userID string, limit int) ([]RankedTopic, error) {
	rec, err := r.userRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Walk the taxonomy in declaration order so equal affinities rank
	// deterministically.
	out := make([]RankedTopic, 0, len(rec.Affinities))
	for _, topic := range r.tax.Topics() {
		if v := rec.Affinities.Get(topic); v > 0 {
			out = append(out, RankedTopic{Topic: topic, Name: r.tax.Name(topic), Affinity: v})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Affinity > out[j].Affinity
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SelectFeedTopics picks the role and topic for one explore-feed page using
// the deterministic index (page-1) mod count into each ranked list, so
// consecutive pages cycle through the rankings instead of re-randomizing.
// A user with no nonzero affinities cycles the full taxonomy in declaration
// order, so cold-start feeds still vary by page.
func (r *Ranker) SelectFeedTopics(ctx context.Context, userID string, page int) (*FeedSelection, error) {
	if page < 1 {
		return nil, fmt.Errorf("page %d: %w", page, affinity.ErrInvalidValue)
	}

	roles, err := r.RankRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	topics, err := r.RankTopics(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	sel := &FeedSelection{Page: page}
	if len(roles) > 0 {
		sel.Role = roles[(page-1)%len(roles)].Role
	}
	if len(topics) > 0 {
		sel.Topic = topics[(page-1)%len(topics)].Topic
	} else if n := r.tax.Size(); n > 0 {
		sel.Topic = r.tax.TopicAt((page - 1) % n)
	}

	r.logger.Debug().
		Str("user_id", userID).
		Int("page", page).
		Str("role", sel.Role).
		Str("topic", sel.Topic).
		Msg("selected feed role and topic")
	return sel, nil
}
