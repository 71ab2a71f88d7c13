// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metadata"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

// Update algorithm constants. These reproduce the captured production
// behavior; change them only with an A/B comparison against real traffic.
const (
	// retentionThreshold is the watched/clip-duration ratio above which a
	// watch counts as high retention and triggers the modifier floor.
	retentionThreshold = 0.6

	// retentionFloor is the minimum modifier granted by a high-retention
	// watch when the previous modifier was below it.
	retentionFloor = 0.8

	// incrementScale converts normalized watch time into a modifier bump.
	incrementScale = 0.2

	// incrementDurationCap caps the video duration used to normalize watch
	// time, so long videos still accrue meaningful increments.
	incrementDurationCap = 100.0

	// blendFactor damps the active-window delta when folding it into
	// long-term affinity.
	blendFactor = 0.15

	// complexityStep is the uniform adjustment applied by a too-hard or
	// too-easy signal.
	complexityStep = 0.1
)

// Direction is the user feedback signal for complexity adjustment.
type Direction string

// Complexity adjustment directions.
const (
	DirectionTooHard Direction = "too_hard"
	DirectionTooEasy Direction = "too_easy"
)

// ParseDirection maps the wire value to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionTooHard, DirectionTooEasy:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidValue, s)
	}
}

// Engine implements the affinity update algorithm: watch recording into the
// active window, periodic blending into long-term affinity, and the explicit
// override paths (like/dislike, complexity feedback).
//
// Every mutation is scoped to a single owner record, so the store's per-owner
// serialization is all the locking the engine needs.
type Engine struct {
	store      Store
	gen        *Generator
	meta       metadata.Provider
	tax        *taxonomy.Taxonomy
	windowSize int
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEngine creates the affinity engine. windowSize is the active window
// capacity (MAX_ACTIVE_AFFINITIES).
func NewEngine(store Store, gen *Generator, meta metadata.Provider, tax *taxonomy.Taxonomy, windowSize int) *Engine {
	return &Engine{
		store:      store,
		gen:        gen,
		meta:       meta,
		tax:        tax,
		windowSize: windowSize,
		now:        time.Now,
		logger:     logging.WithComponent("affinity-engine"),
	}
}

// validateEntries rejects the whole batch before any mutation: every topic
// must be in the taxonomy and every value a finite number in [0, 1].
func (e *Engine) validateEntries(entries map[string]float64) error {
	for topic, value := range entries {
		if !e.tax.Contains(topic) {
			return fmt.Errorf("topic %q: %w", topic, ErrInvalidTopic)
		}
		if !validValue(value) {
			return fmt.Errorf("topic %q value %v: %w", topic, value, ErrInvalidValue)
		}
	}
	return nil
}

// EnsureUser creates an empty affinity record for the user if none exists,
// after confirming the user exists in the catalog.
func (e *Engine) EnsureUser(ctx context.Context, userID string) (*UserRecord, error) {
	ok, err := e.meta.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user %q: %w", userID, err)
	}
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return e.store.UpsertUser(ctx, userID, func(*UserRecord) error { return nil })
}

// GetUser returns the user's affinity record, or ErrNotFound.
func (e *Engine) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	return e.store.GetUser(ctx, userID)
}

// DeleteUser removes the user's affinity record.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	return e.store.DeleteUser(ctx, userID)
}

// SetUserAffinities upserts the given topic values into the user's long-term
// affinity vector, creating the record if absent. The batch is validated in
// full before anything is written.
func (e *Engine) SetUserAffinities(ctx context.Context, userID string, entries map[string]float64) (*UserRecord, error) {
	if err := e.validateEntries(entries); err != nil {
		return nil, err
	}
	return e.store.UpsertUser(ctx, userID, func(rec *UserRecord) error {
		for topic, value := range entries {
			rec.Affinities.Set(topic, value)
		}
		return nil
	})
}

// SetUserComplexities upserts topic complexity values for a user.
func (e *Engine) SetUserComplexities(ctx context.Context, userID string, entries map[string]float64) (*UserRecord, error) {
	if err := e.validateEntries(entries); err != nil {
		return nil, err
	}
	return e.store.UpsertUser(ctx, userID, func(rec *UserRecord) error {
		for topic, value := range entries {
			rec.Complexities.Set(topic, value)
		}
		return nil
	})
}

// GetVideo returns the video's affinity record, generating it lazily from
// catalog tags when no record exists yet.
func (e *Engine) GetVideo(ctx context.Context, videoID string) (*VideoRecord, error) {
	return e.gen.Ensure(ctx, videoID)
}

// RegenerateVideo rebuilds the video's affinity vector from current catalog
// tags, replacing the stored affinities and keeping complexities.
func (e *Engine) RegenerateVideo(ctx context.Context, videoID string) (*VideoRecord, error) {
	return e.gen.Generate(ctx, videoID)
}

// DeleteVideo removes the video's affinity record. A later watch will
// regenerate it from catalog tags.
func (e *Engine) DeleteVideo(ctx context.Context, videoID string) error {
	return e.store.DeleteVideo(ctx, videoID)
}

// SetVideoAffinities upserts editorial affinity overrides for a video.
func (e *Engine) SetVideoAffinities(ctx context.Context, videoID string, entries map[string]float64) (*VideoRecord, error) {
	if err := e.validateEntries(entries); err != nil {
		return nil, err
	}
	return e.store.UpsertVideo(ctx, videoID, func(rec *VideoRecord) error {
		for topic, value := range entries {
			rec.Affinities.Set(topic, value)
		}
		return nil
	})
}

// SetVideoComplexities upserts editorial complexity values for a video.
func (e *Engine) SetVideoComplexities(ctx context.Context, videoID string, entries map[string]float64) (*VideoRecord, error) {
	if err := e.validateEntries(entries); err != nil {
		return nil, err
	}
	return e.store.UpsertVideo(ctx, videoID, func(rec *VideoRecord) error {
		for topic, value := range entries {
			rec.Complexities.Set(topic, value)
		}
		return nil
	})
}

// computeModifier derives the new window modifier for a watch.
//
// A high-retention watch (ratio over retentionThreshold) floors the result
// at retentionFloor when the previous modifier was below it. Independently,
// watch time normalized by the capped video duration adds an increment on
// top of the previous modifier, clamped at 1. The higher of the two wins.
func computeModifier(oldModifier, watched, clipDuration, videoDuration float64) float64 {
	floor := oldModifier
	if clipDuration > 0 && watched/clipDuration > retentionThreshold && oldModifier < retentionFloor {
		floor = retentionFloor
	}

	var increment float64
	if denom := math.Min(videoDuration, incrementDurationCap); denom > 0 {
		increment = incrementScale * (watched / denom)
	}

	modifier := math.Min(oldModifier+increment, 1)
	if floor > modifier {
		modifier = floor
	}
	return modifier
}

// RecordWatch processes a watch event: it resolves video and clip metadata,
// lazily generates the video's affinity vector, computes the new window
// modifier, and upserts the window entry with eviction. The long-term vector
// is untouched until RecomputeFromActive runs.
//
// Fails with ErrUserAffinityNotFound when the user has no affinity record,
// ErrVideoNotFound or ErrClipNotFound for unknown content, and
// ErrInvalidValue for a negative or non-finite watched duration.
func (e *Engine) RecordWatch(ctx context.Context, userID, videoID, clipID string, watchedSeconds float64) (*UserRecord, error) {
	if math.IsNaN(watchedSeconds) || math.IsInf(watchedSeconds, 0) || watchedSeconds < 0 {
		return nil, fmt.Errorf("watched duration %v: %w", watchedSeconds, ErrInvalidValue)
	}

	video, err := e.meta.Video(ctx, videoID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, fmt.Errorf("video %q: %w", videoID, ErrVideoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch video %q: %w", videoID, err)
	}

	clip, err := e.meta.Clip(ctx, clipID)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, fmt.Errorf("clip %q: %w", clipID, ErrClipNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch clip %q: %w", clipID, err)
	}

	if _, err := e.gen.Ensure(ctx, videoID); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	rec, err := e.store.UpdateUser(ctx, userID, func(rec *UserRecord) error {
		if err := checkWindowCapacity(rec.Window, e.windowSize); err != nil {
			return err
		}

		oldModifier, _ := windowModifier(rec.Window, videoID)
		modifier := computeModifier(oldModifier, watchedSeconds, clip.Duration, video.Duration)

		rec.Window = upsertWindowEntry(rec.Window, WindowEntry{
			VideoID:   videoID,
			Modifier:  modifier,
			Timestamp: now,
		}, e.windowSize)

		// Active topics come from the video's tag set, not its affinity
		// vector, so editorial overrides never change which topics a watch
		// marks active.
		for _, topic := range video.AllTopics() {
			if _, ok := e.tax.Index(topic); !ok {
				continue
			}
			if !rec.HasActiveTopic(topic) {
				rec.ActiveTopics = append(rec.ActiveTopics, topic)
			}
		}

		rec.WatchesSinceRecompute++
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("user_id", userID).
		Str("video_id", videoID).
		Int("window_len", len(rec.Window)).
		Msg("recorded watch")
	return rec, nil
}

// RecomputeFromActive folds the active window into the user's long-term
// affinity vector: per-topic deltas accumulate videoAffinity * modifier over
// all window entries, then each topic moves by blendFactor * delta, clamped
// at 1. An empty window is a no-op. The window itself is preserved; only an
// explicit reset clears it.
func (e *Engine) RecomputeFromActive(ctx context.Context, userID string) (*UserRecord, error) {
	current, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(current.Window) == 0 {
		return current, nil
	}

	// Materialize video affinities outside the user lock; a watch racing in
	// after this snapshot is picked up by the next recompute.
	videoAff := make(map[string]Vector, len(current.Window))
	for _, entry := range current.Window {
		vrec, err := e.gen.Ensure(ctx, entry.VideoID)
		if err != nil {
			return nil, err
		}
		videoAff[entry.VideoID] = vrec.Affinities
	}

	rec, err := e.store.UpdateUser(ctx, userID, func(rec *UserRecord) error {
		delta := make([]float64, e.tax.Size())
		for _, entry := range rec.Window {
			va, ok := videoAff[entry.VideoID]
			if !ok {
				continue
			}
			for topic, value := range va {
				if idx, ok := e.tax.Index(topic); ok {
					delta[idx] += value * entry.Modifier
				}
			}
		}

		for i, d := range delta {
			if d == 0 {
				continue
			}
			topic := e.tax.TopicAt(i)
			rec.Affinities.Set(topic, math.Min(1, rec.Affinities.Get(topic)+d*blendFactor))
		}

		rec.WatchesSinceRecompute = 0
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("user_id", userID).
		Int("window_len", len(rec.Window)).
		Msg("recomputed long-term affinity from active window")
	return rec, nil
}

// AdjustComplexity applies a uniform complexity shift across every taxonomy
// topic in response to a too-hard or too-easy signal, clamped to [0, 1]. The
// triggering video's own topics do not narrow the adjustment.
func (e *Engine) AdjustComplexity(ctx context.Context, userID, videoID string, dir Direction) (*UserRecord, error) {
	if dir != DirectionTooHard && dir != DirectionTooEasy {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidValue, dir)
	}

	if _, err := e.meta.Video(ctx, videoID); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return nil, fmt.Errorf("video %q: %w", videoID, ErrVideoNotFound)
		}
		return nil, fmt.Errorf("fetch video %q: %w", videoID, err)
	}

	step := complexityStep
	if dir == DirectionTooHard {
		step = -complexityStep
	}

	rec, err := e.store.UpdateUser(ctx, userID, func(rec *UserRecord) error {
		for _, topic := range e.tax.Topics() {
			c := rec.Complexities.Get(topic) + step
			rec.Complexities.Set(topic, math.Min(1, math.Max(0, c)))
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	return rec, err
}

// SetExplicitModifier records a like (1) or dislike (0) by writing the
// window entry's modifier directly, inserting an entry if the video is not
// in the window. The retention formula is bypassed entirely.
func (e *Engine) SetExplicitModifier(ctx context.Context, userID, videoID string, value float64) (*UserRecord, error) {
	if value != 0 && value != 1 {
		return nil, fmt.Errorf("explicit modifier %v: %w", value, ErrInvalidValue)
	}

	// The video affinity must exist for the next recompute to pick the
	// signal up, so materialize it now.
	if _, err := e.gen.Ensure(ctx, videoID); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	rec, err := e.store.UpdateUser(ctx, userID, func(rec *UserRecord) error {
		rec.Window = upsertWindowEntry(rec.Window, WindowEntry{
			VideoID:   videoID,
			Modifier:  value,
			Timestamp: now,
		}, e.windowSize)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	return rec, err
}

// ResetWindow clears the user's active window and ActiveTopics set, starting
// a fresh recency epoch. Long-term affinities are untouched.
func (e *Engine) ResetWindow(ctx context.Context, userID string) (*UserRecord, error) {
	rec, err := e.store.UpdateUser(ctx, userID, func(rec *UserRecord) error {
		rec.Window = nil
		rec.ActiveTopics = nil
		rec.WatchesSinceRecompute = 0
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", userID, ErrUserAffinityNotFound)
	}
	return rec, err
}

// WindowSize returns the configured active window capacity.
func (e *Engine) WindowSize() int {
	return e.windowSize
}
