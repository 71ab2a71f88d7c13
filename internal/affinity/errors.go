// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import "errors"

// Sentinel errors returned by the affinity store and engine. Callers match
// them with errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrInvalidTopic indicates a topic ID outside the closed taxonomy.
	ErrInvalidTopic = errors.New("affinity: topic not in taxonomy")

	// ErrInvalidValue indicates an affinity or complexity value outside [0, 1],
	// or a non-finite number.
	ErrInvalidValue = errors.New("affinity: value out of range")

	// ErrNotFound indicates the requested affinity record does not exist.
	ErrNotFound = errors.New("affinity: record not found")

	// ErrUserAffinityNotFound indicates a watch-path operation referenced a
	// user with no affinity record.
	ErrUserAffinityNotFound = errors.New("affinity: user affinity not found")

	// ErrVideoNotFound indicates the referenced video does not exist in the
	// catalog, so its affinity vector cannot be generated.
	ErrVideoNotFound = errors.New("affinity: video not found")

	// ErrClipNotFound indicates the referenced clip does not exist in the
	// catalog.
	ErrClipNotFound = errors.New("affinity: clip not found")

	// ErrWindowCapacity indicates a persisted window longer than the
	// configured capacity. Eviction makes this unreachable; seeing it means
	// the stored record is corrupt and the bug is fatal, not retryable.
	ErrWindowCapacity = errors.New("affinity: window capacity invariant violated")
)
