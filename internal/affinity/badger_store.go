// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package affinity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	userKeyPrefix  = "user_affinity:"
	videoKeyPrefix = "video_affinity:"
)

// lockStripes bounds the mutex table for per-owner serialization.
const lockStripes = 64

// BadgerStore implements Store using BadgerDB for durable single-document
// storage. All operations for one owner serialize on a striped mutex, so a
// read-modify-write in UpdateUser never races another writer for the same
// owner; cross-owner operations proceed in parallel.
type BadgerStore struct {
	db      *badger.DB
	ownedDB bool
	stripes [lockStripes]sync.Mutex
}

// NewBadgerStore wraps an already-open BadgerDB handle. The caller retains
// ownership of the handle; Close becomes a no-op.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a BadgerDB at path (or in memory when path is empty)
// and returns a store that owns the handle.
func OpenBadgerStore(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(newBadgerLogger()).
		WithInMemory(inMemory)
	if inMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open affinity store: %w", err)
	}
	return &BadgerStore{db: db, ownedDB: true}, nil
}

// Close releases the underlying database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.ownedDB {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

// GetUser retrieves a user affinity record by ID.
func (s *BadgerStore) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var rec UserRecord
	if err := s.get(userKeyPrefix+userID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutUser stores a user affinity record.
func (s *BadgerStore) PutUser(ctx context.Context, rec *UserRecord) error {
	mu := s.lock(userKeyPrefix + rec.UserID)
	mu.Lock()
	defer mu.Unlock()
	return s.put(userKeyPrefix+rec.UserID, rec)
}

// UpdateUser applies fn to the stored record under the owner's lock and
// persists the result. The record passed to fn is private to the call.
func (s *BadgerStore) UpdateUser(ctx context.Context, userID string, fn func(*UserRecord) error) (*UserRecord, error) {
	return s.mutateUser(ctx, userID, false, fn)
}

// UpsertUser is UpdateUser starting from an empty record when none exists.
func (s *BadgerStore) UpsertUser(ctx context.Context, userID string, fn func(*UserRecord) error) (*UserRecord, error) {
	return s.mutateUser(ctx, userID, true, fn)
}

func (s *BadgerStore) mutateUser(ctx context.Context, userID string, createMissing bool, fn func(*UserRecord) error) (*UserRecord, error) {
	key := userKeyPrefix + userID
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	var rec UserRecord
	err := s.get(key, &rec)
	switch {
	case errors.Is(err, ErrNotFound) && createMissing:
		rec = UserRecord{
			UserID:       userID,
			Affinities:   make(Vector),
			Complexities: make(Vector),
		}
	case err != nil:
		return nil, err
	}
	if rec.Affinities == nil {
		rec.Affinities = make(Vector)
	}
	if rec.Complexities == nil {
		rec.Complexities = make(Vector)
	}

	if err := fn(&rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.put(key, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteUser removes a user affinity record.
func (s *BadgerStore) DeleteUser(ctx context.Context, userID string) error {
	return s.delete(userKeyPrefix + userID)
}

// GetVideo retrieves a video affinity record by ID.
func (s *BadgerStore) GetVideo(ctx context.Context, videoID string) (*VideoRecord, error) {
	var rec VideoRecord
	if err := s.get(videoKeyPrefix+videoID, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutVideo stores a video affinity record.
func (s *BadgerStore) PutVideo(ctx context.Context, rec *VideoRecord) error {
	mu := s.lock(videoKeyPrefix + rec.VideoID)
	mu.Lock()
	defer mu.Unlock()
	return s.put(videoKeyPrefix+rec.VideoID, rec)
}

// UpsertVideo applies fn to the stored record, creating it when absent.
func (s *BadgerStore) UpsertVideo(ctx context.Context, videoID string, fn func(*VideoRecord) error) (*VideoRecord, error) {
	key := videoKeyPrefix + videoID
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	var rec VideoRecord
	err := s.get(key, &rec)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec.VideoID = videoID
	if rec.Affinities == nil {
		rec.Affinities = make(Vector)
	}
	if rec.Complexities == nil {
		rec.Complexities = make(Vector)
	}

	if err := fn(&rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.put(key, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteVideo removes a video affinity record.
func (s *BadgerStore) DeleteVideo(ctx context.Context, videoID string) error {
	return s.delete(videoKeyPrefix + videoID)
}

func (s *BadgerStore) get(key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

func (s *BadgerStore) put(key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) delete(key string) error {
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return txn.Delete([]byte(key))
	})
}

// badgerLogger routes BadgerDB's internal logging through zerolog at a
// quiet level.
type badgerLogger struct {
	logger zerolog.Logger
}

func newBadgerLogger() badgerLogger {
	return badgerLogger{logger: logging.WithComponent("badger")}
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf("badger: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn().Msgf("badger: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug().Msgf("badger: "+format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf("badger: "+format, args...)
}
