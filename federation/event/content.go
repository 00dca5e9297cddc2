// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// Membership states of an m.room.member event.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// Join rules of an m.room.join_rules event.
const (
	JoinRulePublic     = "public"
	JoinRuleInvite     = "invite"
	JoinRuleKnock      = "knock"
	JoinRuleRestricted = "restricted"
)

// CreateContent is the decoded content of an m.room.create event.
type CreateContent struct {
	Creator     ref.UserID
	RoomVersion string
}

// ParseCreateContent decodes m.room.create content. The creator falls
// back to the event sender when the content omits it, which is how
// room versions 11+ encode it.
func ParseCreateContent(p *PDU) CreateContent {
	c := CreateContent{Creator: p.Sender()}
	if raw, ok := p.Content().Get("creator"); ok && raw.Kind() == canonical.String {
		if creator, err := ref.ParseUserID(raw.StringValue()); err == nil {
			c.Creator = creator
		}
	}
	if raw, ok := p.Content().Get("room_version"); ok && raw.Kind() == canonical.String {
		c.RoomVersion = raw.StringValue()
	}
	return c
}

// MemberContent is the decoded content of an m.room.member event.
type MemberContent struct {
	Membership string
	Reason     string
}

// ParseMemberContent decodes m.room.member content. An absent or
// non-string membership decodes as empty, which no transition table
// entry accepts.
func ParseMemberContent(p *PDU) MemberContent {
	var c MemberContent
	if raw, ok := p.Content().Get("membership"); ok && raw.Kind() == canonical.String {
		c.Membership = raw.StringValue()
	}
	if raw, ok := p.Content().Get("reason"); ok && raw.Kind() == canonical.String {
		c.Reason = raw.StringValue()
	}
	return c
}

// JoinRulesContent is the decoded content of an m.room.join_rules event.
type JoinRulesContent struct {
	JoinRule string
}

// ParseJoinRulesContent decodes m.room.join_rules content.
func ParseJoinRulesContent(p *PDU) JoinRulesContent {
	var c JoinRulesContent
	if raw, ok := p.Content().Get("join_rule"); ok && raw.Kind() == canonical.String {
		c.JoinRule = raw.StringValue()
	}
	return c
}

// PowerLevels is the decoded content of an m.room.power_levels event,
// with absent fields already filled from the fixed defaults. All
// levels are integers — the rule set rejects string levels rather
// than coercing them.
type PowerLevels struct {
	Users         map[string]int64
	UsersDefault  int64
	Events        map[string]int64
	EventsDefault int64
	StateDefault  int64
	Ban           int64
	Kick          int64
	Redact        int64
	Invite        int64
}

// DefaultPowerLevels returns the power levels that apply when a room
// has no m.room.power_levels event: everyone at level zero except the
// moderation actions, with the creator special-cased by UserLevel.
func DefaultPowerLevels() PowerLevels {
	return PowerLevels{
		Users:         map[string]int64{},
		UsersDefault:  0,
		Events:        map[string]int64{},
		EventsDefault: 0,
		StateDefault:  50,
		Ban:           50,
		Kick:          50,
		Redact:        50,
		Invite:        0,
	}
}

// ParsePowerLevels decodes m.room.power_levels content over the
// defaults. Non-integer level values are ignored (the field keeps its
// default) rather than failing the whole event — a malformed level in
// one key must not strip moderation powers everywhere else.
func ParsePowerLevels(p *PDU) PowerLevels {
	levels := DefaultPowerLevels()
	content := p.Content()

	levels.Users = intMap(content, "users")
	levels.Events = intMap(content, "events")
	readLevel(content, "users_default", &levels.UsersDefault)
	readLevel(content, "events_default", &levels.EventsDefault)
	readLevel(content, "state_default", &levels.StateDefault)
	readLevel(content, "ban", &levels.Ban)
	readLevel(content, "kick", &levels.Kick)
	readLevel(content, "redact", &levels.Redact)
	readLevel(content, "invite", &levels.Invite)
	return levels
}

// UserLevel returns the power level of a user: an explicit users entry
// if present, otherwise users_default. The creator-gets-100 rule for
// rooms with no power_levels event lives in the rule engine, which is
// the layer that knows the create event.
func (l PowerLevels) UserLevel(user ref.UserID) int64 {
	if level, ok := l.Users[user.String()]; ok {
		return level
	}
	return l.UsersDefault
}

// EventLevel returns the level required to send the given event type:
// an explicit events entry if present, otherwise state_default for
// state events and events_default for message events.
func (l PowerLevels) EventLevel(eventType ref.EventType, isState bool) int64 {
	if level, ok := l.Events[string(eventType)]; ok {
		return level
	}
	if isState {
		return l.StateDefault
	}
	return l.EventsDefault
}

// ServerACLContent is the decoded content of an m.room.server_acl event.
type ServerACLContent struct {
	Allow           []string
	Deny            []string
	AllowIPLiterals bool
}

// ParseServerACLContent decodes m.room.server_acl content. An absent
// allow list means allow-all (`["*"]`); allow_ip_literals defaults to
// true, both per the ACL rules.
func ParseServerACLContent(p *PDU) ServerACLContent {
	c := ServerACLContent{Allow: []string{"*"}, AllowIPLiterals: true}
	content := p.Content()
	if raw, ok := content.Get("allow"); ok && raw.Kind() == canonical.Array {
		c.Allow = stringList(raw)
	}
	if raw, ok := content.Get("deny"); ok && raw.Kind() == canonical.Array {
		c.Deny = stringList(raw)
	}
	if raw, ok := content.Get("allow_ip_literals"); ok && raw.Kind() == canonical.Bool {
		c.AllowIPLiterals = raw.BoolValue()
	}
	return c
}

func readLevel(content canonical.Value, key string, out *int64) {
	if raw, ok := content.Get(key); ok && raw.Kind() == canonical.Int {
		*out = raw.IntValue()
	}
}

func intMap(content canonical.Value, key string) map[string]int64 {
	result := map[string]int64{}
	raw, ok := content.Get(key)
	if !ok || raw.Kind() != canonical.Object {
		return result
	}
	for _, member := range raw.Members() {
		if member.Value.Kind() == canonical.Int {
			result[member.Key] = member.Value.IntValue()
		}
	}
	return result
}

func stringList(value canonical.Value) []string {
	var result []string
	for _, element := range value.Elements() {
		if element.Kind() == canonical.String {
			result = append(result, element.StringValue())
		}
	}
	return result
}
