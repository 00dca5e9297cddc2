// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// StateKey identifies one slot of room state: an event type plus the
// event's state key. Never two events occupy the same slot in a
// resolved state.
type StateKey struct {
	Type ref.EventType
	Key  string
}

// StateProvider is the rule engine's read interface to a room state.
type StateProvider interface {
	// StateEvent returns the event holding the given state slot, or nil
	// if the state has no entry for it.
	StateEvent(eventType ref.EventType, stateKey string) *event.PDU
}

// StateMap is a map-backed StateProvider.
type StateMap map[StateKey]*event.PDU

// NewStateMap builds a StateMap from state events. Non-state events
// are ignored; later events displace earlier ones in the same slot.
func NewStateMap(events ...*event.PDU) StateMap {
	m := make(StateMap, len(events))
	for _, p := range events {
		if p.IsState() {
			m[StateKey{Type: p.Type(), Key: *p.StateKey()}] = p
		}
	}
	return m
}

// StateEvent implements StateProvider.
func (m StateMap) StateEvent(eventType ref.EventType, stateKey string) *event.PDU {
	return m[StateKey{Type: eventType, Key: stateKey}]
}

// membership returns the user's current membership in the given state,
// or "leave" if the state has no member event for them.
func membership(state StateProvider, user ref.UserID) string {
	member := state.StateEvent(ref.RoomMember, user.String())
	if member == nil {
		return event.MembershipLeave
	}
	return event.ParseMemberContent(member).Membership
}

// currentLevels returns the room's power levels: the decoded
// m.room.power_levels state event, or the fixed defaults when none
// exists.
func currentLevels(state StateProvider) event.PowerLevels {
	if pl := state.StateEvent(ref.RoomPowerLevels, ""); pl != nil {
		return event.ParsePowerLevels(pl)
	}
	return event.DefaultPowerLevels()
}

// userLevel returns the user's effective power. While the room has no
// power_levels event, the creator holds 100 and everyone else 0; once
// one exists, it is authoritative for everyone.
func userLevel(state StateProvider, create *event.PDU, user ref.UserID) int64 {
	if pl := state.StateEvent(ref.RoomPowerLevels, ""); pl != nil {
		return event.ParsePowerLevels(pl).UserLevel(user)
	}
	if event.ParseCreateContent(create).Creator == user {
		return 100
	}
	return 0
}

// currentJoinRule returns the room's join rule, defaulting to invite
// when no m.room.join_rules event exists.
func currentJoinRule(state StateProvider) string {
	jr := state.StateEvent(ref.RoomJoinRules, "")
	if jr == nil {
		return event.JoinRuleInvite
	}
	rule := event.ParseJoinRulesContent(jr).JoinRule
	if rule == "" {
		return event.JoinRuleInvite
	}
	return rule
}
