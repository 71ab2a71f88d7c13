// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/candidates"
	"github.com/clipfolio/affinity-engine/internal/config"
	"github.com/clipfolio/affinity-engine/internal/eventprocessor"
	"github.com/clipfolio/affinity-engine/internal/history"
	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/ranking"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

// WatchPublisher puts watch events on the bus; *eventprocessor.Publisher
// satisfies it.
type WatchPublisher interface {
	PublishWatchEvent(ctx context.Context, ev *eventprocessor.WatchEvent) error
}

// Server holds the HTTP surface's dependencies.
type Server struct {
	engine    *affinity.Engine
	ranker    *ranking.Ranker
	resolver  *candidates.Resolver
	history   *history.Store
	tax       *taxonomy.Taxonomy
	cfg       config.APIConfig
	publisher WatchPublisher
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewServer creates the API server. history and resolver may be nil when
// those subsystems are disabled; their routes then return 404.
func NewServer(engine *affinity.Engine, ranker *ranking.Ranker, resolver *candidates.Resolver,
	hist *history.Store, tax *taxonomy.Taxonomy, cfg config.APIConfig) *Server {
	return &Server{
		engine:   engine,
		ranker:   ranker,
		resolver: resolver,
		history:  hist,
		tax:      tax,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logging.WithComponent("api"),
	}
}

// SetWatchPublisher switches the watch endpoint into bus mode: watch events
// are published to JetStream for asynchronous processing instead of being
// applied inline.
func (s *Server) SetWatchPublisher(pub WatchPublisher) {
	s.publisher = pub
}

// Routes assembles the router with the full middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(chimw.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
	if s.cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/taxonomy", s.handleGetTaxonomy)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/affinities", s.handleCreateUserAffinity)
			r.Get("/affinities", s.handleGetUserAffinity)
			r.Put("/affinities", s.handleSetUserAffinities)
			r.Delete("/affinities", s.handleDeleteUserAffinity)
			r.Put("/complexities", s.handleSetUserComplexities)

			r.Post("/watch", s.handleRecordWatch)
			r.Post("/recompute", s.handleRecompute)
			r.Post("/complexity-feedback", s.handleComplexityFeedback)
			r.Put("/videos/{videoID}/modifier", s.handleSetExplicitModifier)
			r.Delete("/window", s.handleResetWindow)

			r.Get("/roles", s.handleRankRoles)
			r.Get("/topics", s.handleRankTopics)
			r.Get("/feed", s.handleFeed)
			r.Get("/history", s.handleHistory)
		})

		r.Route("/videos/{videoID}", func(r chi.Router) {
			r.Get("/affinities", s.handleGetVideoAffinity)
			r.Put("/affinities", s.handleSetVideoAffinities)
			r.Put("/complexities", s.handleSetVideoComplexities)
			r.Delete("/affinities", s.handleDeleteVideoAffinity)
			r.Post("/regenerate", s.handleRegenerateVideo)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

func (s *Server) handleGetTaxonomy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	type topicInfo struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Parent    string   `json:"parent,omitempty"`
		Subtopics []string `json:"subtopics,omitempty"`
	}

	topics := make([]topicInfo, 0, s.tax.Size())
	for _, id := range s.tax.Topics() {
		info := topicInfo{ID: id, Name: s.tax.Name(id), Subtopics: s.tax.Children(id)}
		if p, ok := s.tax.Parent(id); ok {
			info.Parent = p
		}
		topics = append(topics, info)
	}
	rw.Success(map[string]any{"topics": topics})
}

// decodeJSON decodes and validates a request body. On failure it writes the
// error response and returns false.
func (s *Server) decodeJSON(rw *ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var details []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, fe.Namespace()+" failed "+fe.Tag())
			}
		}
		rw.ValidationError("request validation failed", details)
		return false
	}
	return true
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
