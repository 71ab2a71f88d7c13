// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package candidates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/clipfolio/affinity-engine/internal/logging"
	"github.com/clipfolio/affinity-engine/internal/metrics"
)

// HTTPClientConfig configures the index client's resilience knobs.
type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// RequestsPerSecond caps outbound request rate; 0 disables limiting.
	RequestsPerSecond float64

	// BreakerMaxFailures consecutive failures trip the circuit open.
	BreakerMaxFailures uint32

	// BreakerOpenInterval is how long the circuit stays open before a probe.
	BreakerOpenInterval time.Duration
}

// HTTPClient implements Provider against the search/vector index REST API.
// The index is a shared dependency under bursty feed traffic, so calls go
// through a rate limiter and a circuit breaker.
type HTTPClient struct {
	cfg     HTTPClientConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]Candidate]
	logger  zerolog.Logger
}

// NewHTTPClient creates an index client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	logger := logging.WithComponent("candidate-index")

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	breaker := gobreaker.NewCircuitBreaker[[]Candidate](gobreaker.Settings{
		Name: "candidate-index",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		Timeout: cfg.BreakerOpenInterval,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CandidateBreakerState.Set(breakerStateValue(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("candidate index circuit breaker state change")
		},
	})

	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// ByTopic queries the index for the best candidates in a topic.
func (c *HTTPClient) ByTopic(ctx context.Context, topicID string, limit int) ([]Candidate, error) {
	path := "/api/v1/search/topic/" + url.PathEscape(topicID) + "?limit=" + strconv.Itoa(limit)
	return c.execute(ctx, http.MethodGet, path, nil)
}

// BySimilarity queries the index for candidates nearest the given vector.
func (c *HTTPClient) BySimilarity(ctx context.Context, vector map[string]float64, limit int) ([]Candidate, error) {
	body, err := json.Marshal(struct {
		Vector map[string]float64 `json:"vector"`
		Limit  int                `json:"limit"`
	}{Vector: vector, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal similarity query: %w", err)
	}
	return c.execute(ctx, http.MethodPost, "/api/v1/search/similar", body)
}

func (c *HTTPClient) execute(ctx context.Context, method, path string, body []byte) ([]Candidate, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	cands, err := c.breaker.Execute(func() ([]Candidate, error) {
		return c.do(ctx, method, path, body)
	})
	switch {
	case err == nil:
		metrics.CandidateRequestsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CandidateRequestsTotal.WithLabelValues("breaker_open").Inc()
	default:
		metrics.CandidateRequestsTotal.WithLabelValues("error").Inc()
	}
	return cands, err
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]Candidate, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		return nil, fmt.Errorf("index returned status %d for %s", resp.StatusCode, path)
	}

	var result struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}
	return result.Candidates, nil
}
