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
)

// videoAffinityView is the wire shape of a video's affinity record.
type videoAffinityView struct {
	VideoID      string             `json:"video_id"`
	Affinities   map[string]float64 `json:"affinities"`
	Complexities map[string]float64 `json:"complexities"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func videoView(rec *affinity.VideoRecord) *videoAffinityView {
	return &videoAffinityView{
		VideoID:      rec.VideoID,
		Affinities:   rec.Affinities,
		Complexities: rec.Complexities,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// handleGetVideoAffinity returns the stored record, generating it from
// catalog tags on first access.
func (s *Server) handleGetVideoAffinity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rec, err := s.engine.GetVideo(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(videoView(rec))
}

func (s *Server) handleSetVideoAffinities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req setEntriesRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.SetVideoAffinities(r.Context(), chi.URLParam(r, "videoID"), req.Entries)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(videoView(rec))
}

func (s *Server) handleSetVideoComplexities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req setEntriesRequest
	if !s.decodeJSON(rw, r, &req) {
		return
	}

	rec, err := s.engine.SetVideoComplexities(r.Context(), chi.URLParam(r, "videoID"), req.Entries)
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(videoView(rec))
}

func (s *Server) handleDeleteVideoAffinity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := s.engine.DeleteVideo(r.Context(), chi.URLParam(r, "videoID")); err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.NoContent()
}

// handleRegenerateVideo rebuilds the affinity vector from current catalog
// tags, used after retagging.
func (s *Server) handleRegenerateVideo(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rec, err := s.engine.RegenerateVideo(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		writeEngineError(rw, err)
		return
	}
	rw.Success(videoView(rec))
}
