// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package ranking scores roles and topics against a user's affinity vector
// and drives deterministic explore-feed topic selection.
//
// Role weights are static: loaded once from YAML at startup, validated
// against the taxonomy, and immutable afterwards. Declaration order in the
// file is the tie-break order everywhere, which keeps rankings stable across
// processes.
package ranking

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/clipfolio/affinity-engine/internal/taxonomy"
)

// RoleWeights declares one role and the topic weights it scores against.
// Weights are scalars, not confined to [0,1]; only affinity values are.
type RoleWeights struct {
	Role    string             `koanf:"role"`
	Name    string             `koanf:"name"`
	Weights map[string]float64 `koanf:"weights"`
}

// WeightTable is the immutable role-to-topic-weights mapping.
type WeightTable struct {
	roles []RoleWeights
}

type tableSchema struct {
	Roles []RoleWeights `koanf:"roles"`
}

// LoadTable reads the role weight table from a YAML file and validates every
// referenced topic against the taxonomy.
func LoadTable(path string, tax *taxonomy.Taxonomy) (*WeightTable, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load role table %s: %w", path, err)
	}

	var doc tableSchema
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("unmarshal role table: %w", err)
	}
	return NewTable(doc.Roles, tax)
}

// NewTable builds a weight table from declared roles. Used directly in tests.
func NewTable(roles []RoleWeights, tax *taxonomy.Taxonomy) (*WeightTable, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("role table declares no roles")
	}

	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r.Role == "" {
			return nil, fmt.Errorf("role table contains a role with empty ID")
		}
		if _, dup := seen[r.Role]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Role)
		}
		seen[r.Role] = struct{}{}

		for topic := range r.Weights {
			if !tax.Contains(topic) {
				return nil, fmt.Errorf("role %q references unknown topic %q", r.Role, topic)
			}
		}
	}

	return &WeightTable{roles: roles}, nil
}

// Roles returns the declared roles in file order. The slice is shared;
// callers must not mutate it.
func (t *WeightTable) Roles() []RoleWeights {
	return t.roles
}

// Len returns the number of declared roles.
func (t *WeightTable) Len() int {
	return len(t.roles)
}
