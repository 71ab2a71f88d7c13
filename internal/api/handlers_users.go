// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/eventprocessor"
	"github.com/clipfolio/affinity-engine/internal/metrics"
)

type setEntriesRequest struct {
	Entries map[string]float64 `json:"entries" validate:"required"`
}

type watchRequest struct {
	VideoID        string  `json:"video_id" validate:"required"`
	ClipID         string  `json:"clip_id" validate:"required"`
	WatchedSeconds float64 `json:"watched_seconds" validate:"gte=0"`
}

type complexityFeedbackRequest struct {
	VideoID   string `json:"video_id" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=too_hard too_easy"`
}

type modifierRequest struct {
	Value float64 `json:"value"`
}

// userAffinityView is the wire shape of a user's affinity record.
type userAffinityView struct {
	UserID       string                 `json:"user_id"`
	Affinities   map[string]float64     `json:"affinities"`
	Complexities map[string]float64     `json:"complexities"`
	Window       []affinity.WindowEntry `json:"window"`
	ActiveTopics []string               `json:"active_topics"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func userView(rec *affinity.UserRecord) *userAffinityView {
	return &userAffinityView{
		UserID:       rec.UserID,
		Affinities:   rec.Affinities,
		Complexities: rec.Complexities,
		Window:       rec.Window,
		ActiveTopics: rec.ActiveTopics,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (s *Server) handleCreateUserAffinity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID := chi.URLParam(r, "userID")

	rec, err := s.engine.EnsureUser(r.Context(), userID)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Created(userView(rec))
}

func (s *Server) handleGetUserAffinity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rec, err := s.engine.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleSetUserAffinities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req setEntriesRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.SetUserAffinities(r.Context(), chi.URLParam(r, "userID"), req.Entries)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleSetUserComplexities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req setEntriesRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.SetUserComplexities(r.Context(), chi.URLParam(r, "userID"), req.Entries)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleDeleteUserAffinity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := s.engine.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.NoContent()
}

func (s *Server) handleRecordWatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req watchRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")

	// Bus mode: hand the event to JetStream and let the processor apply it.
	if s.publisher != nil {
		ev := eventprocessor.NewWatchEvent(userID, req.VideoID, req.ClipID, req.WatchedSeconds)
		if err := s.publisher.PublishWatchEvent(r.Context(), ev); err != nil {
			rw.ExternalServiceError("event bus", err)
			return
		}
		rw.Accepted(map[string]string{"event_id": ev.EventID})
		return
	}

	rec, err := s.engine.RecordWatch(r.Context(), userID,
		req.VideoID, req.ClipID, req.WatchedSeconds)
	if err != nil {
		metrics.RecordWatchEvent("error")
		writeEngineError(rw, err)
		return
	}
	metrics.RecordWatchEvent("ok")
	rw.Success(userView(rec))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	start := time.Now()

	rec, err := s.engine.RecomputeFromActive(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	metrics.RecordRecompute("manual", time.Since(start))
	rw.Success(userView(rec))
}

func (s *Server) handleComplexityFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req complexityFeedbackRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.AdjustComplexity(r.Context(), chi.URLParam(r, "userID"),
		req.VideoID, affinity.Direction(req.Direction))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleSetExplicitModifier(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req modifierRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.SetExplicitModifier(r.Context(), chi.URLParam(r, "userID"),
		chi.URLParam(r, "videoID"), req.Value)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleResetWindow(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rec, err := s.engine.ResetWindow(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(userView(rec))
}

func (s *Server) handleRankRoles(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	roles, err := s.ranker.RankRoles(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(map[string]any{"roles": roles})
}

func (s *Server) handleRankTopics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit, ok := queryInt(r, "limit", 0)
	if !ok || limit < 0 {
		rw.BadRequest("limit must be a non-negative integer")
		return
	}

	topics, err := s.ranker.RankTopics(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(map[string]any{"topics": topics})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.resolver == nil {
		rw.NotFound("feed assembly is disabled")
		return
	}

	page, ok := queryInt(r, "page", 1)
	if !ok || page < 1 {
		rw.BadRequest("page must be a positive integer")
		return
	}
	pageSize, ok := queryInt(r, "page_size", s.cfg.DefaultPageSize)
	if !ok || pageSize < 1 {
		rw.BadRequest("page_size must be a positive integer")
		return
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	feed, err := s.resolver.Feed(r.Context(), chi.URLParam(r, "userID"), page, pageSize)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.SuccessWithPagination(feed, &PaginationMeta{
		Count:   len(feed.Items),
		Page:    page,
		Limit:   pageSize,
		HasMore: len(feed.Items) == pageSize,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.history == nil {
		rw.NotFound("watch history is disabled")
		return
	}

	limit, ok := queryInt(r, "limit", 100)
	if !ok || limit < 0 {
		rw.BadRequest("limit must be a non-negative integer")
		return
	}

	records, err := s.history.ForUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		rw.InternalError("failed to read watch history")
		return
	}
	rw.SuccessWithPagination(map[string]any{"events": records}, &PaginationMeta{
		Count:   len(records),
		Limit:   limit,
		HasMore: limit > 0 && len(records) == limit,
	})
}
