// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package transaction

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/hearth/federation/auth"
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/federation/state"
	"github.com/bureau-foundation/hearth/federation/storage"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// room serializes graph insertion and state recomputation for one
// room. Signature checks and backfill fetches run outside its lock;
// only admission — the part that mutates the graph and resolved
// state — holds it.
type room struct {
	roomID ref.RoomID

	mu    sync.Mutex
	graph *event.Graph

	// states holds the resolved state after each forward extremity.
	// Resolving across all of them yields the room's current state.
	states map[ref.EventID]auth.StateMap

	// base seeds the state bookkeeping after a restart, when the graph
	// is empty but the store carries a snapshot. Loaded lazily.
	base       auth.StateMap
	baseLoaded bool
}

func newRoom(roomID ref.RoomID) *room {
	return &room{
		roomID: roomID,
		graph:  event.NewGraph(roomID),
		states: map[ref.EventID]auth.StateMap{},
	}
}

// storeProvider adapts storage.Store to the resolver's EventProvider.
type storeProvider struct {
	ctx   context.Context
	store storage.Store
}

func (sp storeProvider) Event(id ref.EventID) *event.PDU {
	p, err := sp.store.Event(sp.ctx, id)
	if err != nil {
		return nil
	}
	return p
}

// process runs the room-scoped pipeline stages for one event: ACL
// gate, dependency resolution, then locked admission.
func (r *room) process(ctx context.Context, pr *Processor, p *event.PDU, origin ref.ServerName) Verdict {
	provider := storeProvider{ctx: ctx, store: pr.cfg.Store}

	r.mu.Lock()
	r.loadBase(ctx, pr)
	current := r.currentStateLocked(provider)
	r.mu.Unlock()

	if err := auth.ServerACLFromState(current).CheckServerACL(origin, r.roomID); err != nil {
		pr.cfg.Logger.Info("event rejected: origin denied by room ACL",
			"event_id", p.EventID(), "origin", origin, "room_id", r.roomID)
		return RejectedACL
	}

	if !r.ensureDependencies(ctx, pr, p, origin, 0) {
		pr.cfg.Logger.Warn("event rejected: dependencies unresolvable",
			"event_id", p.EventID(), "origin", origin, "room_id", r.roomID)
		return RejectedDependency
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admit(ctx, pr, p, provider)
}

// ensureDependencies backfills missing prev and auth events from the
// origin, depth-bounded, admitting fetched ancestors before their
// descendants. Returns false when a dependency cannot be resolved
// within the budget.
func (r *room) ensureDependencies(ctx context.Context, pr *Processor, p *event.PDU, origin ref.ServerName, depth int) bool {
	missing := r.missingDependencies(ctx, pr, p)
	if len(missing) == 0 {
		return true
	}
	if depth >= pr.cfg.MaxBackfillDepth {
		return false
	}
	for _, id := range missing {
		ancestor, err := pr.fetchWithRetry(ctx, origin, id)
		if err != nil {
			pr.cfg.Logger.Warn("backfill failed",
				"event_id", id, "room_id", r.roomID, "origin", origin, "error", err)
			return false
		}
		if ancestor.RoomID() != r.roomID {
			return false
		}
		if !r.ensureDependencies(ctx, pr, ancestor, origin, depth+1) {
			return false
		}
		// An ancestor that fails authorization is still stored and
		// inserted for audit, which satisfies the dependency; admit's
		// verdict only matters for the event the peer delivered.
		r.mu.Lock()
		r.admit(ctx, pr, ancestor, storeProvider{ctx: ctx, store: pr.cfg.Store})
		r.mu.Unlock()
	}
	return len(r.missingDependencies(ctx, pr, p)) == 0
}

// missingDependencies lists prev and auth events absent from the
// store, deduplicated.
func (r *room) missingDependencies(ctx context.Context, pr *Processor, p *event.PDU) []ref.EventID {
	seen := map[ref.EventID]bool{}
	var missing []ref.EventID
	for _, list := range [][]ref.EventID{p.PrevEvents(), p.AuthEvents()} {
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, err := pr.cfg.Store.Event(ctx, id); errors.Is(err, storage.ErrNotFound) {
				missing = append(missing, id)
			}
		}
	}
	return missing
}

// admit authorizes the event and inserts it into the graph and state
// bookkeeping. Caller holds the room lock.
func (r *room) admit(ctx context.Context, pr *Processor, p *event.PDU, provider storeProvider) Verdict {
	if r.graph.Has(p.EventID()) {
		return VerdictAccepted
	}
	r.loadBase(ctx, pr)

	// Authorization against the event's own declared auth events:
	// reproducible from the event's dependencies alone.
	if err := auth.Allowed(p, r.authState(ctx, pr, p)); err != nil {
		var missing *auth.MissingAuthEventError
		if errors.As(err, &missing) {
			// Retained for audit, like the denial below: the event is
			// terminal here, but operators can still inspect it.
			if err := pr.cfg.Store.PutEvent(ctx, p); err != nil {
				pr.cfg.Logger.Error("store event failed", "event_id", p.EventID(), "error", err)
			}
			pr.cfg.Logger.Info("event rejected: auth events incomplete",
				"event_id", p.EventID(), "room_id", r.roomID, "error", err)
			return RejectedDependency
		}
		// Retained for audit, excluded from state.
		if err := pr.cfg.Store.PutEvent(ctx, p); err != nil {
			pr.cfg.Logger.Error("store event failed", "event_id", p.EventID(), "error", err)
		}
		pr.cfg.Logger.Info("event rejected: authorization denied",
			"event_id", p.EventID(), "room_id", r.roomID, "error", err)
		return RejectedAuth
	}

	// Soft-fail check against the room's current resolved state. A
	// denial here keeps the event in the graph (history is history)
	// but out of the resolved state.
	softFailed := p.Type() != ref.RoomCreate &&
		auth.Allowed(p, r.currentStateLocked(provider)) != nil

	if err := pr.cfg.Store.PutEvent(ctx, p); err != nil {
		pr.cfg.Logger.Error("store event failed", "event_id", p.EventID(), "error", err)
		return RejectedDependency
	}
	if err := r.graph.Insert(p); err != nil {
		var cycle *event.CycleError
		if errors.As(err, &cycle) {
			return RejectedMalformed
		}
		if !errors.Is(err, event.ErrDuplicateEvent) {
			return RejectedMalformed
		}
	}
	if softFailed {
		pr.cfg.Logger.Info("event soft-failed against current state",
			"event_id", p.EventID(), "room_id", r.roomID)
		return RejectedAuth
	}

	r.advanceState(ctx, pr, p, provider)
	return VerdictAccepted
}

// authState assembles the state visible through the event's declared
// auth events.
func (r *room) authState(ctx context.Context, pr *Processor, p *event.PDU) auth.StateMap {
	var events []*event.PDU
	for _, id := range p.AuthEvents() {
		if e, err := pr.cfg.Store.Event(ctx, id); err == nil {
			events = append(events, e)
		}
	}
	return auth.NewStateMap(events...)
}

// advanceState folds the event into the per-extremity state
// bookkeeping and persists the newly resolved room state. Caller
// holds the room lock.
func (r *room) advanceState(ctx context.Context, pr *Processor, p *event.PDU, provider storeProvider) {
	var prevSets []auth.StateMap
	for _, prev := range p.PrevEvents() {
		if s, ok := r.states[prev]; ok {
			prevSets = append(prevSets, s)
		}
	}
	if len(prevSets) == 0 && r.base != nil {
		prevSets = append(prevSets, r.base)
	}
	after := state.Resolve(prevSets, provider)
	if p.IsState() {
		after[auth.StateKey{Type: p.Type(), Key: *p.StateKey()}] = p
	}
	for _, prev := range p.PrevEvents() {
		delete(r.states, prev)
	}
	r.states[p.EventID()] = after

	resolved := r.currentStateLocked(provider)
	if err := pr.cfg.Store.PutState(ctx, r.roomID, resolved); err != nil {
		pr.cfg.Logger.Error("persist room state failed", "room_id", r.roomID, "error", err)
	}
}

// currentStateLocked resolves across all forward-extremity states.
// Caller holds the room lock.
func (r *room) currentStateLocked(provider storeProvider) auth.StateMap {
	if len(r.states) == 0 {
		if r.base != nil {
			return r.base
		}
		return auth.StateMap{}
	}
	sets := make([]auth.StateMap, 0, len(r.states))
	for _, s := range r.states {
		sets = append(sets, s)
	}
	return state.Resolve(sets, provider)
}

// loadBase seeds the room's state bookkeeping from the store snapshot
// once. Caller holds the room lock.
func (r *room) loadBase(ctx context.Context, pr *Processor) {
	if r.baseLoaded {
		return
	}
	r.baseLoaded = true
	snapshot, err := pr.cfg.Store.State(ctx, r.roomID)
	if err == nil {
		r.base = snapshot
	} else if !errors.Is(err, storage.ErrNotFound) {
		pr.cfg.Logger.Error("load room state failed", "room_id", r.roomID, "error", err)
		r.baseLoaded = false
	}
}
