// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/candidates"
	"github.com/clipfolio/affinity-engine/internal/config"
	"github.com/clipfolio/affinity-engine/internal/eventprocessor"
	"github.com/clipfolio/affinity-engine/internal/history"
	"github.com/clipfolio/affinity-engine/internal/metadata"
	"github.com/clipfolio/affinity-engine/internal/ranking"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

type fakeCatalog struct {
	videos map[string]*metadata.Video
	clips  map[string]*metadata.Clip
	users  map[string]bool
}

func (f *fakeCatalog) Video(_ context.Context, id string) (*metadata.Video, error) {
	if v, ok := f.videos[id]; ok {
		return v, nil
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeCatalog) Clip(_ context.Context, id string) (*metadata.Clip, error) {
	if c, ok := f.clips[id]; ok {
		return c, nil
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeCatalog) UserExists(_ context.Context, id string) (bool, error) {
	return f.users[id], nil
}

type fakeIndex struct {
	byTopic map[string][]candidates.Candidate
}

func (f *fakeIndex) ByTopic(_ context.Context, topicID string, limit int) ([]candidates.Candidate, error) {
	cands := f.byTopic[topicID]
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands, nil
}

func (f *fakeIndex) BySimilarity(_ context.Context, _ map[string]float64, _ int) ([]candidates.Candidate, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := affinity.OpenBadgerStore("", true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	tax, err := taxonomy.New([]taxonomy.Topic{
		{ID: "1", Name: "Backend", Subtopics: []taxonomy.Topic{{ID: "2"}}},
		{ID: "6", Name: "Machine Learning"},
	})
	if err != nil {
		t.Fatal(err)
	}

	catalog := &fakeCatalog{
		videos: map[string]*metadata.Video{
			"v1": {ID: "v1", Title: "Intro to Go", Duration: 100, Topics: []string{"1"}, InferredTopics: []string{"6"}},
		},
		clips: map[string]*metadata.Clip{
			"c1": {ID: "c1", VideoID: "v1", Duration: 10},
		},
		users: map[string]bool{"alice": true},
	}

	gen := affinity.NewGenerator(catalog, store, tax)
	engine := affinity.NewEngine(store, gen, catalog, tax, 30)

	table, err := ranking.NewTable([]ranking.RoleWeights{
		{Role: "backend", Name: "Backend Engineer", Weights: map[string]float64{"1": 1, "2": 0.5}},
		{Role: "ml", Name: "ML Engineer", Weights: map[string]float64{"6": 1}},
	}, tax)
	if err != nil {
		t.Fatal(err)
	}
	ranker := ranking.NewRanker(table, store, tax)

	index := &fakeIndex{byTopic: map[string][]candidates.Candidate{
		"1": {{VideoID: "v1", Score: 0.9}},
	}}
	resolver := candidates.NewResolver(index, catalog, ranker)

	hist, err := history.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	srv := NewServer(engine, ranker, resolver, hist, tax, config.APIConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
	})

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func doReq(t *testing.T, ts *httptest.Server, method, path string, body any) (int, *envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, &envelope{Success: true}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, &env
}

func TestUserAffinityLifecycle(t *testing.T) {
	ts := newTestServer(t)

	// No record yet.
	status, _ := doReq(t, ts, http.MethodGet, "/api/v1/users/alice/affinities", nil)
	if status != http.StatusNotFound {
		t.Fatalf("GET before create = %d, want 404", status)
	}

	// Unknown catalog user cannot get a record.
	status, env := doReq(t, ts, http.MethodPost, "/api/v1/users/ghost/affinities", nil)
	if status != http.StatusNotFound || env.Success {
		t.Fatalf("create for unknown user = %d, want 404", status)
	}

	status, _ = doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)
	if status != http.StatusCreated {
		t.Fatalf("create = %d, want 201", status)
	}

	status, env = doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities",
		map[string]any{"entries": map[string]float64{"1": 0.7}})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("PUT affinities = %d", status)
	}

	var view userAffinityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Affinities["1"] != 0.7 {
		t.Errorf("affinity[1] = %v, want 0.7", view.Affinities["1"])
	}

	status, _ = doReq(t, ts, http.MethodDelete, "/api/v1/users/alice/affinities", nil)
	if status != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want 204", status)
	}
	status, _ = doReq(t, ts, http.MethodGet, "/api/v1/users/alice/affinities", nil)
	if status != http.StatusNotFound {
		t.Fatalf("GET after delete = %d, want 404", status)
	}
}

func TestSetAffinitiesValidation(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	// Unknown topic.
	status, env := doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities",
		map[string]any{"entries": map[string]float64{"bogus": 0.5}})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeInvalidTopic {
		t.Errorf("unknown topic = %d %+v, want 400 INVALID_TOPIC", status, env.Error)
	}

	// Out of range.
	status, env = doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities",
		map[string]any{"entries": map[string]float64{"1": 1.5}})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeOutOfRange {
		t.Errorf("out of range = %d %+v, want 400 OUT_OF_RANGE", status, env.Error)
	}

	// Non-numeric value fails JSON decoding.
	status, env = doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities",
		map[string]any{"entries": map[string]any{"1": "high"}})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeBadRequest {
		t.Errorf("non-numeric = %d %+v, want 400 BAD_REQUEST", status, env.Error)
	}

	// Missing entries field.
	status, env = doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities", map[string]any{})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("missing entries = %d %+v, want 400 VALIDATION_FAILED", status, env.Error)
	}
}

func TestWatchRecomputeAndRanking(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	// High-retention watch floors the modifier at 0.8.
	status, env := doReq(t, ts, http.MethodPost, "/api/v1/users/alice/watch",
		map[string]any{"video_id": "v1", "clip_id": "c1", "watched_seconds": 6.5})
	if status != http.StatusOK {
		t.Fatalf("watch = %d: %+v", status, env.Error)
	}
	var view userAffinityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Window) != 1 || view.Window[0].Modifier != 0.8 {
		t.Fatalf("window = %+v, want one entry at 0.8", view.Window)
	}

	status, env = doReq(t, ts, http.MethodPost, "/api/v1/users/alice/recompute", nil)
	if status != http.StatusOK {
		t.Fatalf("recompute = %d", status)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if v := view.Affinities["1"]; v < 0.119 || v > 0.121 {
		t.Errorf("affinity[1] = %v, want 0.12", v)
	}

	// Rankings reflect the blended affinity.
	status, env = doReq(t, ts, http.MethodGet, "/api/v1/users/alice/roles", nil)
	if status != http.StatusOK {
		t.Fatalf("roles = %d", status)
	}
	var rolesResp struct {
		Roles []ranking.RankedRole `json:"roles"`
	}
	if err := json.Unmarshal(env.Data, &rolesResp); err != nil {
		t.Fatal(err)
	}
	if len(rolesResp.Roles) != 2 {
		t.Fatalf("roles = %d, want 2", len(rolesResp.Roles))
	}

	status, env = doReq(t, ts, http.MethodGet, "/api/v1/users/alice/topics?limit=1", nil)
	if status != http.StatusOK {
		t.Fatalf("topics = %d", status)
	}
	var topicsResp struct {
		Topics []ranking.RankedTopic `json:"topics"`
	}
	if err := json.Unmarshal(env.Data, &topicsResp); err != nil {
		t.Fatal(err)
	}
	if len(topicsResp.Topics) != 1 {
		t.Errorf("topics = %d, want limit 1", len(topicsResp.Topics))
	}
}

func TestWatchUnknownContent(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	status, env := doReq(t, ts, http.MethodPost, "/api/v1/users/alice/watch",
		map[string]any{"video_id": "nope", "clip_id": "c1", "watched_seconds": 5})
	if status != http.StatusNotFound || env.Error == nil {
		t.Errorf("unknown video = %d, want 404", status)
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventprocessor.WatchEvent
}

func (p *capturingPublisher) PublishWatchEvent(_ context.Context, ev *eventprocessor.WatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestWatchBusMode(t *testing.T) {
	store, err := affinity.OpenBadgerStore("", true)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tax, err := taxonomy.New([]taxonomy.Topic{{ID: "1", Name: "Backend"}})
	if err != nil {
		t.Fatal(err)
	}
	catalog := &fakeCatalog{
		videos: map[string]*metadata.Video{"v1": {ID: "v1", Duration: 100, Topics: []string{"1"}}},
		clips:  map[string]*metadata.Clip{"c1": {ID: "c1", VideoID: "v1", Duration: 10}},
		users:  map[string]bool{"alice": true},
	}
	gen := affinity.NewGenerator(catalog, store, tax)
	engine := affinity.NewEngine(store, gen, catalog, tax, 30)
	table, err := ranking.NewTable([]ranking.RoleWeights{
		{Role: "backend", Name: "Backend Engineer", Weights: map[string]float64{"1": 1}},
	}, tax)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(engine, ranking.NewRanker(table, store, tax), nil, nil, tax, config.APIConfig{
		DefaultPageSize: 20, MaxPageSize: 100,
	})
	pub := &capturingPublisher{}
	srv.SetWatchPublisher(pub)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	status, env := doReq(t, ts, http.MethodPost, "/api/v1/users/alice/watch",
		map[string]any{"video_id": "v1", "clip_id": "c1", "watched_seconds": 6.5})
	if status != http.StatusAccepted {
		t.Fatalf("bus-mode watch = %d, want 202", status)
	}
	var ack struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.EventID == "" {
		t.Error("missing event_id in acknowledgment")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0].UserID != "alice" || pub.events[0].WatchedSeconds != 6.5 {
		t.Errorf("published events = %+v, want one for alice", pub.events)
	}
}

func TestComplexityFeedback(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	status, env := doReq(t, ts, http.MethodPost, "/api/v1/users/alice/complexity-feedback",
		map[string]any{"video_id": "v1", "direction": "too_easy"})
	if status != http.StatusOK {
		t.Fatalf("feedback = %d: %+v", status, env.Error)
	}
	var view userAffinityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if v := view.Complexities["1"]; v < 0.099 || v > 0.101 {
		t.Errorf("complexity[1] = %v, want 0.1", v)
	}

	status, env = doReq(t, ts, http.MethodPost, "/api/v1/users/alice/complexity-feedback",
		map[string]any{"video_id": "v1", "direction": "sideways"})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("bad direction = %d %+v, want 400 VALIDATION_FAILED", status, env.Error)
	}
}

func TestExplicitModifierAndWindowReset(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	status, env := doReq(t, ts, http.MethodPut, "/api/v1/users/alice/videos/v1/modifier",
		map[string]any{"value": 1})
	if status != http.StatusOK {
		t.Fatalf("like = %d: %+v", status, env.Error)
	}
	var view userAffinityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Window) != 1 || view.Window[0].Modifier != 1 {
		t.Errorf("window = %+v, want modifier 1", view.Window)
	}

	status, env = doReq(t, ts, http.MethodPut, "/api/v1/users/alice/videos/v1/modifier",
		map[string]any{"value": 0.5})
	if status != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeOutOfRange {
		t.Errorf("fractional modifier = %d, want 400 OUT_OF_RANGE", status)
	}

	status, env = doReq(t, ts, http.MethodDelete, "/api/v1/users/alice/window", nil)
	if status != http.StatusOK {
		t.Fatalf("reset = %d", status)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Window) != 0 {
		t.Errorf("window after reset = %+v, want empty", view.Window)
	}
}

func TestFeedEndpoint(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)
	doReq(t, ts, http.MethodPut, "/api/v1/users/alice/affinities",
		map[string]any{"entries": map[string]float64{"1": 0.9}})

	status, env := doReq(t, ts, http.MethodGet, "/api/v1/users/alice/feed?page=1", nil)
	if status != http.StatusOK {
		t.Fatalf("feed = %d: %+v", status, env.Error)
	}
	var feed candidates.FeedPage
	if err := json.Unmarshal(env.Data, &feed); err != nil {
		t.Fatal(err)
	}
	if feed.Topic != "1" || len(feed.Items) != 1 || feed.Items[0].VideoID != "v1" {
		t.Errorf("feed = %+v, want topic 1 with v1", feed)
	}

	status, _ = doReq(t, ts, http.MethodGet, "/api/v1/users/alice/feed?page=0", nil)
	if status != http.StatusBadRequest {
		t.Errorf("page 0 = %d, want 400", status)
	}
}

func TestVideoAffinityEndpoints(t *testing.T) {
	ts := newTestServer(t)

	// First GET lazily generates from catalog tags.
	status, env := doReq(t, ts, http.MethodGet, "/api/v1/videos/v1/affinities", nil)
	if status != http.StatusOK {
		t.Fatalf("GET video = %d", status)
	}
	var view videoAffinityView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Affinities["1"] != 1 || view.Affinities["6"] != 1 {
		t.Errorf("generated affinities = %v, want 1.0 for tags", view.Affinities)
	}

	status, _ = doReq(t, ts, http.MethodPut, "/api/v1/videos/v1/complexities",
		map[string]any{"entries": map[string]float64{"1": 0.4}})
	if status != http.StatusOK {
		t.Fatalf("PUT complexities = %d", status)
	}

	// Regeneration keeps complexities.
	status, env = doReq(t, ts, http.MethodPost, "/api/v1/videos/v1/regenerate", nil)
	if status != http.StatusOK {
		t.Fatalf("regenerate = %d", status)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Complexities["1"] != 0.4 {
		t.Errorf("complexity[1] = %v, want preserved 0.4", view.Complexities["1"])
	}

	status, _ = doReq(t, ts, http.MethodGet, "/api/v1/videos/unknown/affinities", nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown video = %d, want 404", status)
	}
}

func TestTaxonomyEndpoint(t *testing.T) {
	ts := newTestServer(t)

	status, env := doReq(t, ts, http.MethodGet, "/api/v1/taxonomy", nil)
	if status != http.StatusOK {
		t.Fatalf("taxonomy = %d", status)
	}
	var resp struct {
		Topics []struct {
			ID        string   `json:"id"`
			Name      string   `json:"name"`
			Parent    string   `json:"parent"`
			Subtopics []string `json:"subtopics"`
		} `json:"topics"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Topics) != 3 {
		t.Fatalf("topics = %d, want 3", len(resp.Topics))
	}
	if resp.Topics[0].ID != "1" || len(resp.Topics[0].Subtopics) != 1 {
		t.Errorf("topics[0] = %+v, want 1 with subtopic", resp.Topics[0])
	}
	if resp.Topics[1].Parent != "1" {
		t.Errorf("topics[1].parent = %q, want 1", resp.Topics[1].Parent)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want echoed trace-123", got)
	}

	var env struct {
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Meta.RequestID != "trace-123" {
		t.Errorf("meta.request_id = %q, want trace-123", env.Meta.RequestID)
	}
}

func TestWatchEventuallyInHistory(t *testing.T) {
	ts := newTestServer(t)
	doReq(t, ts, http.MethodPost, "/api/v1/users/alice/affinities", nil)

	// Direct API watches do not write history (only the bus processor
	// does); the endpoint still serves the empty log.
	status, env := doReq(t, ts, http.MethodGet, "/api/v1/users/alice/history", nil)
	if status != http.StatusOK {
		t.Fatalf("history = %d", status)
	}
	var resp struct {
		Events []history.WatchRecord `json:"events"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Events) != 0 {
		t.Errorf("events = %d, want 0", len(resp.Events))
	}
}
