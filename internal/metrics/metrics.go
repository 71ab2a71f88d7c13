// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package metrics provides Prometheus instrumentation for:
// - Watch event intake and processing outcomes
// - Affinity recompute latency and window evictions
// - API endpoint latency and throughput
// - Candidate index health (breaker state, request outcomes)
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Watch pipeline metrics
	WatchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_watch_events_total",
			Help: "Total watch events processed, by outcome",
		},
		[]string{"outcome"}, // "ok", "invalid", "not_found", "error"
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affinity_recompute_duration_seconds",
			Help:    "Duration of active-window recomputation into long-term affinity",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_recomputes_total",
			Help: "Total long-term affinity recomputations, by trigger",
		},
		[]string{"trigger"}, // "watch_threshold", "manual"
	)

	WindowEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_window_evictions_total",
			Help: "Total active-window entries evicted at capacity",
		},
	)

	VideoAffinityGenerations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affinity_video_generations_total",
			Help: "Total video affinity vectors generated from catalog tags",
		},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Candidate index metrics
	CandidateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_index_requests_total",
			Help: "Total requests to the external candidate index, by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "breaker_open"
	)

	CandidateBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "candidate_index_breaker_state",
			Help: "Candidate index circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	// Event bus metrics
	BusMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_total",
			Help: "Total watch-event bus messages, by direction and outcome",
		},
		[]string{"direction", "outcome"}, // direction: "publish", "consume"
	)

	BusHandlerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bus_handler_duration_seconds",
			Help:    "Duration of watch-event handler executions",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordWatchEvent records a processed watch event outcome.
func RecordWatchEvent(outcome string) {
	WatchEventsTotal.WithLabelValues(outcome).Inc()
}

// RecordRecompute records one recomputation with its trigger and duration.
func RecordRecompute(trigger string, duration time.Duration) {
	RecomputesTotal.WithLabelValues(trigger).Inc()
	RecomputeDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records latency and count for one API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	APIRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
}

// RecordBusMessage records a published or consumed bus message outcome.
func RecordBusMessage(direction, outcome string) {
	BusMessagesTotal.WithLabelValues(direction, outcome).Inc()
}
