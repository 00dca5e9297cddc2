// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type.
//
// EventType is a named string type, not a struct wrapper: event types
// are opaque identifiers that need no parsing or validation. The type
// exists purely for compile-time safety — preventing accidental use of
// a state key where an event type is expected (or vice versa).
type EventType string

// Standard room event types the federation core gives special meaning.
// Everything else is an ordinary state or timeline event.
const (
	RoomCreate      EventType = "m.room.create"
	RoomMember      EventType = "m.room.member"
	RoomPowerLevels EventType = "m.room.power_levels"
	RoomJoinRules   EventType = "m.room.join_rules"
	RoomServerACL   EventType = "m.room.server_acl"
	RoomThirdParty  EventType = "m.room.third_party_invite"
	RoomMessage     EventType = "m.room.message"
	RoomName        EventType = "m.room.name"
)

// String returns the event type string (e.g., "m.room.member").
func (t EventType) String() string { return string(t) }
