// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

package ranking

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipfolio/affinity-engine/internal/affinity"
	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Topic{
		{ID: "1", Name: "Backend", Subtopics: []taxonomy.Topic{{ID: "2"}, {ID: "3"}}},
		{ID: "4", Name: "Frontend"},
		{ID: "6", Name: "Machine Learning"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tax
}

func testTable(t *testing.T, tax *taxonomy.Taxonomy) *WeightTable {
	t.Helper()
	table, err := NewTable([]RoleWeights{
		{Role: "backend", Name: "Backend Engineer", Weights: map[string]float64{"1": 1.0, "2": 0.8, "3": 0.6}},
		{Role: "frontend", Name: "Frontend Engineer", Weights: map[string]float64{"4": 1.0}},
		{Role: "ml", Name: "ML Engineer", Weights: map[string]float64{"6": 1.0, "2": 0.4}},
	}, tax)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func testRanker(t *testing.T) (*Ranker, *affinity.BadgerStore) {
	t.Helper()
	store, err := affinity.OpenBadgerStore("", true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	tax := testTaxonomy(t)
	return NewRanker(testTable(t, tax), store, tax), store
}

func putUser(t *testing.T, store *affinity.BadgerStore, userID string, aff map[string]float64) {
	t.Helper()
	_, err := store.UpsertUser(context.Background(), userID, func(rec *affinity.UserRecord) error {
		for topic, v := range aff {
			rec.Affinities.Set(topic, v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRankRolesScoring(t *testing.T) {
	ranker, store := testRanker(t)
	putUser(t, store, "alice", map[string]float64{"1": 0.5, "2": 0.5, "6": 0.9})

	roles, err := ranker.RankRoles(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RankRoles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("roles = %d, want 3", len(roles))
	}

	// backend: 1.0*0.5 + 0.8*0.5 = 0.9; ml: 1.0*0.9 + 0.4*0.5 = 1.1;
	// frontend: 0.
	if roles[0].Role != "ml" || roles[1].Role != "backend" || roles[2].Role != "frontend" {
		t.Errorf("order = [%s %s %s], want [ml backend frontend]",
			roles[0].Role, roles[1].Role, roles[2].Role)
	}
	if diff := roles[0].Score - 1.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ml score = %v, want 1.1", roles[0].Score)
	}
}

func TestRankRolesZeroAffinityKeepsTableOrder(t *testing.T) {
	ranker, store := testRanker(t)
	putUser(t, store, "bob", nil)

	roles, err := ranker.RankRoles(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"backend", "frontend", "ml"}
	for i, w := range want {
		if roles[i].Role != w {
			t.Errorf("roles[%d] = %s, want %s (declaration order on ties)", i, roles[i].Role, w)
		}
	}
}

func TestRankRolesUnknownUser(t *testing.T) {
	ranker, _ := testRanker(t)
	if _, err := ranker.RankRoles(context.Background(), "ghost"); !errors.Is(err, affinity.ErrUserAffinityNotFound) {
		t.Errorf("err = %v, want ErrUserAffinityNotFound", err)
	}
}

func TestRankTopics(t *testing.T) {
	ranker, store := testRanker(t)
	putUser(t, store, "alice", map[string]float64{"1": 0.3, "4": 0.9, "6": 0.3})

	topics, err := ranker.RankTopics(context.Background(), "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	// 4 first; 1 and 6 tie at 0.3 and keep taxonomy order.
	want := []string{"4", "1", "6"}
	if len(topics) != len(want) {
		t.Fatalf("topics = %d, want %d", len(topics), len(want))
	}
	for i, w := range want {
		if topics[i].Topic != w {
			t.Errorf("topics[%d] = %s, want %s", i, topics[i].Topic, w)
		}
	}

	limited, err := ranker.RankTopics(context.Background(), "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].Topic != "4" {
		t.Errorf("limited = %v, want top 2 starting with 4", limited)
	}
}

func TestSelectFeedTopicsCyclesDeterministically(t *testing.T) {
	ranker, store := testRanker(t)
	putUser(t, store, "alice", map[string]float64{"1": 0.9, "4": 0.5})

	ctx := context.Background()

	// Ranked roles: backend (0.9), frontend (0.5), ml (0); ranked topics:
	// 1, 4. Pages cycle both lists independently.
	wantRoles := []string{"backend", "frontend", "ml", "backend"}
	wantTopics := []string{"1", "4", "1", "4"}
	for page := 1; page <= 4; page++ {
		sel, err := ranker.SelectFeedTopics(ctx, "alice", page)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if sel.Role != wantRoles[page-1] || sel.Topic != wantTopics[page-1] {
			t.Errorf("page %d = (%s, %s), want (%s, %s)",
				page, sel.Role, sel.Topic, wantRoles[page-1], wantTopics[page-1])
		}
	}

	// Same page, same result.
	a, _ := ranker.SelectFeedTopics(ctx, "alice", 2)
	b, _ := ranker.SelectFeedTopics(ctx, "alice", 2)
	if a.Role != b.Role || a.Topic != b.Topic {
		t.Error("repeated selection for the same page must be identical")
	}
}

func TestSelectFeedTopicsColdStart(t *testing.T) {
	ranker, store := testRanker(t)
	putUser(t, store, "bob", nil)

	// No nonzero affinities: topics fall back to taxonomy declaration order.
	sel, err := ranker.SelectFeedTopics(context.Background(), "bob", 2)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Topic != "2" {
		t.Errorf("cold-start page 2 topic = %s, want 2 (taxonomy order)", sel.Topic)
	}

	if _, err := ranker.SelectFeedTopics(context.Background(), "bob", 0); !errors.Is(err, affinity.ErrInvalidValue) {
		t.Errorf("page 0: %v, want ErrInvalidValue", err)
	}
}

func TestTableValidation(t *testing.T) {
	tax := testTaxonomy(t)

	tests := []struct {
		name  string
		roles []RoleWeights
	}{
		{"empty", nil},
		{"empty role id", []RoleWeights{{Role: ""}}},
		{"duplicate role", []RoleWeights{{Role: "x"}, {Role: "x"}}},
		{"unknown topic", []RoleWeights{{Role: "x", Weights: map[string]float64{"99": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.roles, tax); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadTableFromYAML(t *testing.T) {
	tax := testTaxonomy(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `
roles:
  - role: backend
    name: Backend Engineer
    weights:
      "1": 1.0
      "2": 0.8
  - role: ml
    weights:
      "6": 1.0
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path, tax)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len = %d, want 2", table.Len())
	}
	if table.Roles()[0].Role != "backend" {
		t.Errorf("first role = %q, want declaration order preserved", table.Roles()[0].Role)
	}

	if _, err := LoadTable("/nonexistent/roles.yaml", tax); err == nil {
		t.Error("expected error for missing file")
	}
}
