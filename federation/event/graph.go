// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"sort"

	"github.com/bureau-foundation/hearth/lib/ref"
)

// Graph is the append-only event graph of one room: an arena of PDUs
// keyed by event ID, with parent edges following prev_events. Events
// referencing yet-unseen ancestors are accepted — the gap is reported
// by MissingAncestors and closed later by backfill.
//
// Graph is not safe for concurrent use. The transaction processor
// serializes all access per room (single-writer-per-room discipline).
type Graph struct {
	roomID      ref.RoomID
	events      map[ref.EventID]*PDU
	children    map[ref.EventID][]ref.EventID
	extremities map[ref.EventID]struct{}
}

// NewGraph returns an empty graph for the given room.
func NewGraph(roomID ref.RoomID) *Graph {
	return &Graph{
		roomID:      roomID,
		events:      map[ref.EventID]*PDU{},
		children:    map[ref.EventID][]ref.EventID{},
		extremities: map[ref.EventID]struct{}{},
	}
}

// Insert adds a validated event to the graph. Returns
// ErrDuplicateEvent if the event is already present, ErrUnknownRoom if
// it belongs to a different room, and a *CycleError if linking it
// would close a cycle. Insertion updates the forward extremities: the
// new event becomes one, its known parents stop being ones.
func (g *Graph) Insert(p *PDU) error {
	if p.RoomID() != g.roomID {
		return ErrUnknownRoom
	}
	id := p.EventID()
	if _, exists := g.events[id]; exists {
		return ErrDuplicateEvent
	}
	if g.wouldCycle(p) {
		return &CycleError{EventID: id}
	}

	g.events[id] = p
	g.extremities[id] = struct{}{}
	for _, parent := range p.PrevEvents() {
		g.children[parent] = append(g.children[parent], id)
		delete(g.extremities, parent)
	}
	// The new event may itself already be a referenced parent (it
	// arrived by backfill after its children): then it is not a
	// frontier event.
	if len(g.children[id]) > 0 {
		delete(g.extremities, id)
	}
	return nil
}

// wouldCycle reports whether p is an ancestor of itself: some known
// descendant chain already references p's ID as a parent, and p's own
// ancestry reaches back into that chain. Since the arena stores
// parent ids rather than mutable links this is a pure graph query.
func (g *Graph) wouldCycle(p *PDU) bool {
	target := p.EventID()
	for _, parent := range p.PrevEvents() {
		if parent == target {
			return true // direct self-reference
		}
	}
	// Walk p's known ancestry; encountering the new ID means some
	// stored event lists it as a parent while also being reachable
	// from it.
	seen := map[ref.EventID]struct{}{}
	stack := append([]ref.EventID(nil), p.PrevEvents()...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == target {
			return true
		}
		if _, done := seen[current]; done {
			continue
		}
		seen[current] = struct{}{}
		if ancestor, ok := g.events[current]; ok {
			stack = append(stack, ancestor.PrevEvents()...)
		}
	}
	return false
}

// Get returns the event with the given ID, if present.
func (g *Graph) Get(id ref.EventID) (*PDU, bool) {
	p, ok := g.events[id]
	return p, ok
}

// Has reports whether the event is present.
func (g *Graph) Has(id ref.EventID) bool {
	_, ok := g.events[id]
	return ok
}

// Len returns the number of events in the graph.
func (g *Graph) Len() int { return len(g.events) }

// ForwardExtremities returns the current frontier — events with no
// known children — in lexical order for determinism.
func (g *Graph) ForwardExtremities() []ref.EventID {
	frontier := make([]ref.EventID, 0, len(g.extremities))
	for id := range g.extremities {
		frontier = append(frontier, id)
	}
	sort.Slice(frontier, func(i, j int) bool {
		return frontier[i].String() < frontier[j].String()
	})
	return frontier
}

// MissingAncestors lists the prev_events and auth_events of p that are
// not present in the graph, deduplicated, in reference order. A
// non-empty result is a dependency gap that triggers backfill.
func (g *Graph) MissingAncestors(p *PDU) []ref.EventID {
	var missing []ref.EventID
	seen := map[ref.EventID]struct{}{}
	for _, list := range [][]ref.EventID{p.PrevEvents(), p.AuthEvents()} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if !g.Has(id) {
				missing = append(missing, id)
			}
		}
	}
	return missing
}
