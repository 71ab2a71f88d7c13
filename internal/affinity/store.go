// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import "context"

// UserStore persists per-user affinity records.
//
// UpdateUser is the only mutation path the engine uses for existing records:
// it runs fn against the current record under a per-user lock and persists
// the result, so concurrent watches for the same user serialize instead of
// clobbering each other. fn must not retain the record after returning.
type UserStore interface {
	// GetUser returns the record or ErrNotFound.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// PutUser unconditionally writes the record.
	PutUser(ctx context.Context, rec *UserRecord) error

	// UpdateUser atomically applies fn to the stored record and persists the
	// result. Returns ErrNotFound if no record exists; if fn returns an
	// error nothing is written.
	UpdateUser(ctx context.Context, userID string, fn func(*UserRecord) error) (*UserRecord, error)

	// UpsertUser is UpdateUser that starts from an empty record when none
	// exists yet.
	UpsertUser(ctx context.Context, userID string, fn func(*UserRecord) error) (*UserRecord, error)

	// DeleteUser removes the record. Returns ErrNotFound if absent.
	DeleteUser(ctx context.Context, userID string) error
}

// VideoStore persists per-video affinity records.
type VideoStore interface {
	// GetVideo returns the record or ErrNotFound.
	GetVideo(ctx context.Context, videoID string) (*VideoRecord, error)

	// PutVideo unconditionally writes the record.
	PutVideo(ctx context.Context, rec *VideoRecord) error

	// UpsertVideo atomically applies fn to the stored record, starting from
	// an empty record when none exists.
	UpsertVideo(ctx context.Context, videoID string, fn func(*VideoRecord) error) (*VideoRecord, error)

	// DeleteVideo removes the record. Returns ErrNotFound if absent.
	DeleteVideo(ctx context.Context, videoID string) error
}

// Store bundles both document families; the badger implementation keeps them
// in one keyspace under distinct prefixes.
type Store interface {
	UserStore
	VideoStore
}
