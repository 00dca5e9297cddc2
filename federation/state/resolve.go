// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"sort"

	"github.com/bureau-foundation/hearth/federation/auth"
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// EventProvider supplies events by ID for auth chain traversal.
// Unknown IDs return nil; the resolver treats the missing ancestry as
// simply absent rather than failing the whole resolution.
type EventProvider interface {
	Event(id ref.EventID) *event.PDU
}

// Resolve merges candidate state sets into one resolved state. With
// zero or one input set there is nothing to resolve. The result maps
// each (event type, state key) slot to exactly one event.
func Resolve(stateSets []auth.StateMap, events EventProvider) auth.StateMap {
	switch len(stateSets) {
	case 0:
		return auth.StateMap{}
	case 1:
		return copyState(stateSets[0])
	}

	r := &resolver{
		fetch:     events,
		pool:      map[ref.EventID]*event.PDU{},
		chainMemo: map[ref.EventID]map[ref.EventID]bool{},
		power:     map[ref.EventID]int64{},
	}
	for _, set := range stateSets {
		for _, p := range set {
			r.pool[p.EventID()] = p
		}
	}

	unconflicted, conflicted := partition(stateSets)

	// The full conflicted set: disputed candidates plus the auth
	// difference — events reachable from some candidate sets' auth
	// chains but not all. Those carry the power-levels and membership
	// history the two forks disagree about.
	fullConflicted := map[ref.EventID]*event.PDU{}
	for _, candidates := range conflicted {
		for _, p := range candidates {
			fullConflicted[p.EventID()] = p
		}
	}
	for id := range r.authDifference(stateSets) {
		if p := r.event(id); p != nil {
			fullConflicted[id] = p
		}
	}

	// Phase one: control events and their disputed auth ancestry, in
	// reverse topological power order.
	var control []*event.PDU
	for _, p := range fullConflicted {
		if isControlEvent(p) {
			control = append(control, p)
		}
	}
	controlSet := map[ref.EventID]*event.PDU{}
	for _, p := range control {
		r.collectWithin(p, fullConflicted, controlSet)
	}
	resolved := copyState(unconflicted)
	for _, p := range r.powerSort(controlSet) {
		applyIfAllowed(p, resolved)
	}

	// Phase two: everything else, ordered along the mainline of the
	// power-levels event that won phase one.
	var others []*event.PDU
	for id, p := range fullConflicted {
		if _, taken := controlSet[id]; !taken {
			others = append(others, p)
		}
	}
	for _, p := range r.mainlineSort(others, resolved.StateEvent(ref.RoomPowerLevels, "")) {
		applyIfAllowed(p, resolved)
	}

	// Unconflicted state always takes precedence over the replay.
	for slot, p := range unconflicted {
		resolved[slot] = p
	}
	return resolved
}

// partition splits the candidate sets into slots all sets agree on and
// slots in dispute. A slot missing from any set counts as disputed.
func partition(stateSets []auth.StateMap) (unconflicted auth.StateMap, conflicted map[auth.StateKey][]*event.PDU) {
	unconflicted = auth.StateMap{}
	conflicted = map[auth.StateKey][]*event.PDU{}

	slots := map[auth.StateKey]bool{}
	for _, set := range stateSets {
		for slot := range set {
			slots[slot] = true
		}
	}
	for slot := range slots {
		var candidates []*event.PDU
		seen := map[ref.EventID]bool{}
		missing := false
		for _, set := range stateSets {
			p, ok := set[slot]
			if !ok {
				missing = true
				continue
			}
			if !seen[p.EventID()] {
				seen[p.EventID()] = true
				candidates = append(candidates, p)
			}
		}
		if !missing && len(candidates) == 1 {
			unconflicted[slot] = candidates[0]
		} else {
			conflicted[slot] = candidates
		}
	}
	return unconflicted, conflicted
}

// isControlEvent reports whether the event shapes who may do what:
// create, power levels, join rules, and membership events that remove
// someone else (ban, kick). These resolve first so the mainline pass
// runs under the power structure the forks fought over.
func isControlEvent(p *event.PDU) bool {
	switch p.Type() {
	case ref.RoomCreate, ref.RoomPowerLevels, ref.RoomJoinRules:
		return p.StateKeyEquals("")
	case ref.RoomMember:
		membership := event.ParseMemberContent(p).Membership
		if membership != event.MembershipLeave && membership != event.MembershipBan {
			return false
		}
		return p.StateKey() != nil && *p.StateKey() != p.Sender().String()
	}
	return false
}

// applyIfAllowed re-authorizes the event against the accumulated state
// and installs it in its slot on success. Refused events are dropped
// from the resolution, not from the graph.
func applyIfAllowed(p *event.PDU, resolved auth.StateMap) {
	if !p.IsState() {
		return
	}
	if auth.Allowed(p, resolved) != nil {
		return
	}
	resolved[auth.StateKey{Type: p.Type(), Key: *p.StateKey()}] = p
}

func copyState(state auth.StateMap) auth.StateMap {
	out := make(auth.StateMap, len(state))
	for slot, p := range state {
		out[slot] = p
	}
	return out
}

type resolver struct {
	fetch EventProvider
	pool  map[ref.EventID]*event.PDU

	chainMemo map[ref.EventID]map[ref.EventID]bool
	power     map[ref.EventID]int64
}

// event looks up an event in the pool, falling back to the provider.
func (r *resolver) event(id ref.EventID) *event.PDU {
	if p, ok := r.pool[id]; ok {
		return p
	}
	p := r.fetch.Event(id)
	if p != nil {
		r.pool[id] = p
	}
	return p
}

// authChain returns the set of events transitively reachable through
// auth_events from p, memoized per event.
func (r *resolver) authChain(p *event.PDU) map[ref.EventID]bool {
	if chain, ok := r.chainMemo[p.EventID()]; ok {
		return chain
	}
	chain := map[ref.EventID]bool{}
	r.chainMemo[p.EventID()] = chain
	for _, id := range p.AuthEvents() {
		if chain[id] {
			continue
		}
		chain[id] = true
		if ancestor := r.event(id); ancestor != nil {
			for inner := range r.authChain(ancestor) {
				chain[inner] = true
			}
		}
	}
	return chain
}

// authDifference computes the auth events reachable from some state
// sets but not all of them.
func (r *resolver) authDifference(stateSets []auth.StateMap) map[ref.EventID]bool {
	chains := make([]map[ref.EventID]bool, len(stateSets))
	for i, set := range stateSets {
		chain := map[ref.EventID]bool{}
		for _, p := range set {
			for id := range r.authChain(p) {
				chain[id] = true
			}
		}
		chains[i] = chain
	}

	difference := map[ref.EventID]bool{}
	for _, chain := range chains {
		for id := range chain {
			inAll := true
			for _, other := range chains {
				if !other[id] {
					inAll = false
					break
				}
			}
			if !inAll {
				difference[id] = true
			}
		}
	}
	return difference
}

// collectWithin adds p and its auth-chain ancestors that lie inside
// the conflicted set to out.
func (r *resolver) collectWithin(p *event.PDU, within, out map[ref.EventID]*event.PDU) {
	if _, done := out[p.EventID()]; done {
		return
	}
	out[p.EventID()] = p
	for id := range r.authChain(p) {
		if ancestor, ok := within[id]; ok {
			if _, done := out[id]; !done {
				r.collectWithin(ancestor, within, out)
			}
		}
	}
}

// powerSort orders the control set reverse-topologically: auth
// ancestors before descendants, ties broken by sender power
// (descending), origin timestamp (ascending), then event ID. Kahn's
// algorithm with a comparator-picked ready set keeps the output a
// pure function of the event set.
func (r *resolver) powerSort(events map[ref.EventID]*event.PDU) []*event.PDU {
	// Remaining in-set auth ancestors per event.
	pending := map[ref.EventID]int{}
	dependents := map[ref.EventID][]*event.PDU{}
	for id, p := range events {
		count := 0
		for ancestor := range r.authChain(p) {
			if _, in := events[ancestor]; in && ancestor != id {
				count++
				dependents[ancestor] = append(dependents[ancestor], p)
			}
		}
		pending[id] = count
	}

	var ready []*event.PDU
	for id, p := range events {
		if pending[id] == 0 {
			ready = append(ready, p)
		}
	}

	ordered := make([]*event.PDU, 0, len(events))
	for len(ready) > 0 {
		best := 0
		for i := 1; i < len(ready); i++ {
			if r.powerLess(ready[i], ready[best]) {
				best = i
			}
		}
		next := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		ordered = append(ordered, next)

		for _, dependent := range dependents[next.EventID()] {
			pending[dependent.EventID()]--
			if pending[dependent.EventID()] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return ordered
}

// powerLess orders two events for the power sort: higher sender power
// first, then older origin timestamp, then lexically smaller event ID.
func (r *resolver) powerLess(a, b *event.PDU) bool {
	powerA, powerB := r.senderPower(a), r.senderPower(b)
	if powerA != powerB {
		return powerA > powerB
	}
	if a.OriginServerTS() != b.OriginServerTS() {
		return a.OriginServerTS() < b.OriginServerTS()
	}
	return a.EventID().String() < b.EventID().String()
}

// senderPower reads the sender's power level from the power_levels
// event among the event's declared auth events, falling back to the
// creator rule when the room predates any power_levels event.
func (r *resolver) senderPower(p *event.PDU) int64 {
	if power, ok := r.power[p.EventID()]; ok {
		return power
	}
	power := int64(0)
	var create *event.PDU
	for _, id := range p.AuthEvents() {
		ancestor := r.event(id)
		if ancestor == nil {
			continue
		}
		switch ancestor.Type() {
		case ref.RoomPowerLevels:
			r.power[p.EventID()] = event.ParsePowerLevels(ancestor).UserLevel(p.Sender())
			return r.power[p.EventID()]
		case ref.RoomCreate:
			create = ancestor
		}
	}
	if create != nil && event.ParseCreateContent(create).Creator == p.Sender() {
		power = 100
	}
	if p.Type() == ref.RoomCreate && len(p.AuthEvents()) == 0 {
		power = 100
	}
	r.power[p.EventID()] = power
	return power
}

// mainlineSort orders the non-control conflicted events by the
// position of their closest power-levels ancestor on the mainline of
// the winning power_levels event, then depth, then timestamp, then
// event ID.
func (r *resolver) mainlineSort(events []*event.PDU, powerLevels *event.PDU) []*event.PDU {
	// The mainline runs newest-first from the winning power_levels
	// event through its power_levels ancestry; positions count up from
	// the oldest so the sort is ascending.
	var line []*event.PDU
	for p := powerLevels; p != nil; p = r.powerLevelsParent(p) {
		line = append(line, p)
	}
	position := map[ref.EventID]int{}
	for i, p := range line {
		position[p.EventID()] = len(line) - i
	}

	mainlinePos := map[ref.EventID]int{}
	var locate func(p *event.PDU) int
	locate = func(p *event.PDU) int {
		if pos, ok := mainlinePos[p.EventID()]; ok {
			return pos
		}
		pos := 0
		if at, ok := position[p.EventID()]; ok {
			pos = at
		} else if parent := r.powerLevelsParent(p); parent != nil {
			mainlinePos[p.EventID()] = 0 // cycle guard during recursion
			pos = locate(parent)
		}
		mainlinePos[p.EventID()] = pos
		return pos
	}

	ordered := append([]*event.PDU(nil), events...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		posA, posB := locate(a), locate(b)
		if posA != posB {
			return posA < posB
		}
		if a.Depth() != b.Depth() {
			return a.Depth() < b.Depth()
		}
		if a.OriginServerTS() != b.OriginServerTS() {
			return a.OriginServerTS() < b.OriginServerTS()
		}
		return a.EventID().String() < b.EventID().String()
	})
	return ordered
}

// powerLevelsParent returns the power-levels event among p's auth
// events, stepping one link down the mainline.
func (r *resolver) powerLevelsParent(p *event.PDU) *event.PDU {
	for _, id := range p.AuthEvents() {
		ancestor := r.event(id)
		if ancestor != nil && ancestor.Type() == ref.RoomPowerLevels && ancestor.StateKeyEquals("") {
			if ancestor.EventID() == p.EventID() {
				return nil
			}
			return ancestor
		}
	}
	return nil
}
