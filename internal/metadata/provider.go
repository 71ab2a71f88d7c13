// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package metadata defines the boundary to the platform catalog service.
//
// Video, clip, and user records are owned by the catalog; this engine only
// reads them. The Provider interface keeps the engine decoupled from the
// transport, with an HTTP client as the production implementation and
// in-memory fakes in tests.
package metadata

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested entity does not exist in the catalog.
var ErrNotFound = errors.New("metadata: not found")

// Video is the catalog's view of a video relevant to affinity tracking.
type Video struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	// Duration is the full video length in seconds.
	Duration float64 `json:"duration"`

	// Topics are editorially assigned topic IDs.
	Topics []string `json:"topics"`

	// InferredTopics are model-assigned topic IDs.
	InferredTopics []string `json:"inferred_topics"`
}

// AllTopics returns editorial and inferred topic IDs, editorial first,
// without deduplication (callers treat the result as a set).
func (v *Video) AllTopics() []string {
	out := make([]string, 0, len(v.Topics)+len(v.InferredTopics))
	out = append(out, v.Topics...)
	out = append(out, v.InferredTopics...)
	return out
}

// Clip is a segment of a video that users watch individually.
type Clip struct {
	ID      string `json:"id"`
	VideoID string `json:"video_id"`

	// Duration is the clip length in seconds.
	Duration float64 `json:"duration"`
}

// VideoProvider resolves video metadata.
type VideoProvider interface {
	// Video returns the video or ErrNotFound.
	Video(ctx context.Context, id string) (*Video, error)
}

// ClipProvider resolves clip metadata.
type ClipProvider interface {
	// Clip returns the clip or ErrNotFound.
	Clip(ctx context.Context, id string) (*Clip, error)
}

// UserProvider confirms user existence.
type UserProvider interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Provider bundles all catalog lookups the engine needs.
type Provider interface {
	VideoProvider
	ClipProvider
	UserProvider
}
