// Clipfolio Affinity Engine - Topic Affinity Tracking and Content Ranking
// Copyright 2026 Clipfolio Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipfolio/affinity-engine

// Package taxonomy holds the closed topic taxonomy every affinity vector is
// validated against.
//
// The taxonomy is loaded once at process start from a YAML file and is
// immutable afterwards, so it is safe for unsynchronized concurrent reads.
// Topic IDs are mapped to dense integer indexes in file order; hot paths
// (recompute deltas) index arrays by these instead of hashing strings.
package taxonomy

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Topic describes a single taxonomy node as declared in the YAML file.
// Parent topics list their subtopics inline; subtopics may not nest further.
type Topic struct {
	ID        string  `koanf:"id"`
	Name      string  `koanf:"name"`
	Subtopics []Topic `koanf:"subtopics"`
}

// Taxonomy is the immutable closed set of valid topic IDs.
type Taxonomy struct {
	ids      []string          // dense index -> topic ID, file order
	index    map[string]int    // topic ID -> dense index
	names    map[string]string // topic ID -> display name
	children map[string][]string
	parent   map[string]string
}

// fileSchema is the root of the taxonomy YAML document.
type fileSchema struct {
	Topics []Topic `koanf:"topics"`
}

// Load reads and builds the taxonomy from a YAML file.
func Load(path string) (*Taxonomy, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load taxonomy file %s: %w", path, err)
	}

	var doc fileSchema
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("unmarshal taxonomy: %w", err)
	}
	return New(doc.Topics)
}

// New builds a taxonomy from declared topics. Used directly in tests.
func New(topics []Topic) (*Taxonomy, error) {
	t := &Taxonomy{
		index:    make(map[string]int),
		names:    make(map[string]string),
		children: make(map[string][]string),
		parent:   make(map[string]string),
	}

	for _, top := range topics {
		if err := t.add(top.ID, top.Name); err != nil {
			return nil, err
		}
		for _, sub := range top.Subtopics {
			if len(sub.Subtopics) > 0 {
				return nil, fmt.Errorf("topic %q: subtopics may not nest", sub.ID)
			}
			if err := t.add(sub.ID, sub.Name); err != nil {
				return nil, err
			}
			t.children[top.ID] = append(t.children[top.ID], sub.ID)
			t.parent[sub.ID] = top.ID
		}
	}

	if len(t.ids) == 0 {
		return nil, fmt.Errorf("taxonomy declares no topics")
	}
	return t, nil
}

func (t *Taxonomy) add(id, name string) error {
	if id == "" {
		return fmt.Errorf("taxonomy contains a topic with empty ID")
	}
	if _, dup := t.index[id]; dup {
		return fmt.Errorf("duplicate topic ID %q", id)
	}
	t.index[id] = len(t.ids)
	t.ids = append(t.ids, id)
	if name != "" {
		t.names[id] = name
	}
	return nil
}

// Contains reports whether id is a valid topic.
func (t *Taxonomy) Contains(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Index returns the dense index for a topic ID.
func (t *Taxonomy) Index(id string) (int, bool) {
	i, ok := t.index[id]
	return i, ok
}

// TopicAt returns the topic ID at the given dense index.
func (t *Taxonomy) TopicAt(i int) string {
	return t.ids[i]
}

// Size returns the number of topics in the taxonomy.
func (t *Taxonomy) Size() int {
	return len(t.ids)
}

// Topics returns all topic IDs in dense index order. The slice is a copy.
func (t *Taxonomy) Topics() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Name returns the display name for a topic, or the ID if none was declared.
func (t *Taxonomy) Name(id string) string {
	if n, ok := t.names[id]; ok {
		return n
	}
	return id
}

// Children returns the subtopic IDs of a parent topic, or nil.
func (t *Taxonomy) Children(id string) []string {
	subs := t.children[id]
	if len(subs) == 0 {
		return nil
	}
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}

// Parent returns the parent topic of a subtopic, if any.
func (t *Taxonomy) Parent(id string) (string, bool) {
	p, ok := t.parent[id]
	return p, ok
}
