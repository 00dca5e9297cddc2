// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// Allowed decides whether the event is permitted given the supplied
// room state. Returns nil when permitted, a *DeniedError when the
// rules refuse it, and a *MissingAuthEventError when the state lacks a
// required entry. Evaluation is pure: same event and state, same
// verdict.
func Allowed(p *event.PDU, state StateProvider) error {
	if p.Type() == ref.RoomCreate {
		return createAllowed(p)
	}

	create := state.StateEvent(ref.RoomCreate, "")
	if create == nil {
		return &MissingAuthEventError{EventID: p.EventID(), Missing: string(ref.RoomCreate)}
	}
	if create.RoomID() != p.RoomID() {
		return deny(p, "create event belongs to a different room")
	}
	if err := federationAllowed(p, create); err != nil {
		return err
	}

	if p.Type() == ref.RoomMember {
		return memberAllowed(p, state, create)
	}

	// Everything else requires a joined sender with enough power for
	// the event type.
	if membership(state, p.Sender()) != event.MembershipJoin {
		return deny(p, "sender is not joined to the room")
	}
	senderLevel := userLevel(state, create, p.Sender())
	required := currentLevels(state).EventLevel(p.Type(), p.IsState())
	if senderLevel < required {
		return deny(p, "sender power below the level required for this event type")
	}

	if p.Type() == ref.RoomPowerLevels {
		return powerLevelsAllowed(p, state, senderLevel)
	}
	return nil
}

// createAllowed checks the room-creation rules: first event in the
// room, sender on the room's own server, sender matching the declared
// creator.
func createAllowed(p *event.PDU) error {
	if len(p.PrevEvents()) != 0 {
		return deny(p, "create event must be the room's first event")
	}
	if len(p.AuthEvents()) != 0 {
		return deny(p, "create event must not declare auth events")
	}
	if p.RoomID().Server() != p.Sender().Server() {
		return deny(p, "room ID domain does not match the creating server")
	}
	if !p.StateKeyEquals("") {
		return deny(p, "create event must have an empty state key")
	}
	if event.ParseCreateContent(p).Creator != p.Sender() {
		return deny(p, "sender does not match the declared room creator")
	}
	return nil
}

// federationAllowed rejects events from other servers when the create
// event set "m.federate": false.
func federationAllowed(p *event.PDU, create *event.PDU) error {
	if p.Sender().Server() == create.Sender().Server() {
		return nil
	}
	if federate, ok := create.Content().Get("m.federate"); ok &&
		federate.Kind() == canonical.Bool && !federate.BoolValue() {
		return deny(p, "room does not federate")
	}
	return nil
}

// memberAllowed applies the membership transition table. The target is
// the state_key user; the sender may differ (invite, kick, ban).
func memberAllowed(p *event.PDU, state StateProvider, create *event.PDU) error {
	if p.StateKey() == nil {
		return deny(p, "member event requires a state key")
	}
	target, err := ref.ParseUserID(*p.StateKey())
	if err != nil {
		return deny(p, "member event state key is not a user ID")
	}
	newMembership := event.ParseMemberContent(p).Membership

	senderMembership := membership(state, p.Sender())
	targetMembership := membership(state, target)
	senderLevel := userLevel(state, create, p.Sender())
	targetLevel := userLevel(state, create, target)
	levels := currentLevels(state)

	switch newMembership {
	case event.MembershipJoin:
		if p.Sender() != target {
			return deny(p, "cannot join on behalf of another user")
		}
		if targetMembership == event.MembershipBan {
			return deny(p, "user is banned from the room")
		}
		// The creator's first join rides directly on the create event.
		if len(p.PrevEvents()) == 1 && p.PrevEvents()[0] == create.EventID() &&
			target == event.ParseCreateContent(create).Creator {
			return nil
		}
		switch currentJoinRule(state) {
		case event.JoinRulePublic:
			return nil
		case event.JoinRuleInvite, event.JoinRuleKnock, event.JoinRuleRestricted:
			if targetMembership == event.MembershipJoin || targetMembership == event.MembershipInvite {
				return nil
			}
			return deny(p, "join requires an active invite under the room's join rule")
		default:
			return deny(p, "unknown join rule")
		}

	case event.MembershipInvite:
		if token, ok := thirdPartyInviteToken(p); ok {
			return thirdPartyInviteAllowed(p, state, token)
		}
		if senderMembership != event.MembershipJoin {
			return deny(p, "inviter is not joined to the room")
		}
		if targetMembership == event.MembershipJoin {
			return deny(p, "cannot invite a user who is already joined")
		}
		if targetMembership == event.MembershipBan {
			return deny(p, "cannot invite a banned user")
		}
		if senderLevel < levels.Invite {
			return deny(p, "sender power below the invite level")
		}
		return nil

	case event.MembershipLeave:
		if p.Sender() == target {
			switch targetMembership {
			case event.MembershipJoin, event.MembershipInvite, event.MembershipKnock:
				return nil
			}
			return deny(p, "cannot leave a room the user is not part of")
		}
		if senderMembership != event.MembershipJoin {
			return deny(p, "kicker is not joined to the room")
		}
		if targetMembership == event.MembershipBan && senderLevel < levels.Ban {
			return deny(p, "unban requires the ban power level")
		}
		if senderLevel < levels.Kick {
			return deny(p, "sender power below the kick level")
		}
		if targetLevel >= senderLevel {
			return deny(p, "cannot kick a user with equal or greater power")
		}
		return nil

	case event.MembershipBan:
		if senderMembership != event.MembershipJoin {
			return deny(p, "sender is not joined to the room")
		}
		if senderLevel < levels.Ban {
			return deny(p, "sender power below the ban level")
		}
		if targetLevel >= senderLevel {
			return deny(p, "cannot ban a user with equal or greater power")
		}
		return nil

	case event.MembershipKnock:
		if currentJoinRule(state) != event.JoinRuleKnock {
			return deny(p, "room's join rule does not permit knocking")
		}
		if p.Sender() != target {
			return deny(p, "cannot knock on behalf of another user")
		}
		switch targetMembership {
		case event.MembershipBan, event.MembershipJoin, event.MembershipInvite:
			return deny(p, "current membership does not permit knocking")
		}
		return nil
	}
	return deny(p, "unknown membership "+newMembership)
}

// thirdPartyInviteToken extracts the signed token of a third-party
// invite, if the member event carries one.
func thirdPartyInviteToken(p *event.PDU) (string, bool) {
	invite, ok := p.Content().Get("third_party_invite")
	if !ok || invite.Kind() != canonical.Object {
		return "", false
	}
	signed, ok := invite.Get("signed")
	if !ok || signed.Kind() != canonical.Object {
		return "", false
	}
	token, ok := signed.Get("token")
	if !ok || token.Kind() != canonical.String {
		return "", false
	}
	return token.StringValue(), true
}

// thirdPartyInviteAllowed accepts an invite that redeems a previously
// published m.room.third_party_invite state event with the same token.
func thirdPartyInviteAllowed(p *event.PDU, state StateProvider, token string) error {
	if state.StateEvent(ref.RoomThirdParty, token) == nil {
		return deny(p, "third-party invite token does not match any published invite")
	}
	return nil
}

// powerLevelsAllowed applies the extra constraints on changing
// m.room.power_levels: every level the event adds, changes, or removes
// must be within the sender's own power, and another user's level may
// only be changed if it is strictly below the sender's. The sender has
// already passed the event-type power check.
func powerLevelsAllowed(p *event.PDU, state StateProvider, senderLevel int64) error {
	current := currentLevels(state)
	proposed := event.ParsePowerLevels(p)

	topLevel := []struct {
		name     string
		old, new int64
	}{
		{"users_default", current.UsersDefault, proposed.UsersDefault},
		{"events_default", current.EventsDefault, proposed.EventsDefault},
		{"state_default", current.StateDefault, proposed.StateDefault},
		{"ban", current.Ban, proposed.Ban},
		{"kick", current.Kick, proposed.Kick},
		{"redact", current.Redact, proposed.Redact},
		{"invite", current.Invite, proposed.Invite},
	}
	for _, level := range topLevel {
		if level.old == level.new {
			continue
		}
		if level.old > senderLevel || level.new > senderLevel {
			return deny(p, "cannot change "+level.name+" past the sender's own power")
		}
	}

	if err := checkLevelMap(p, current.Events, proposed.Events, senderLevel, nil); err != nil {
		return err
	}
	sender := p.Sender().String()
	return checkLevelMap(p, current.Users, proposed.Users, senderLevel, &sender)
}

// checkLevelMap compares one level map (events or users) between the
// current and proposed power levels. When self is non-nil the map
// holds user levels, and demoting another user additionally requires
// their current level to be strictly below the sender's.
func checkLevelMap(p *event.PDU, current, proposed map[string]int64, senderLevel int64, self *string) error {
	for key, oldLevel := range current {
		newLevel, kept := proposed[key]
		if kept && newLevel == oldLevel {
			continue
		}
		if oldLevel > senderLevel {
			return deny(p, "cannot change a level above the sender's own power")
		}
		if kept && newLevel > senderLevel {
			return deny(p, "cannot grant a level above the sender's own power")
		}
		if self != nil && key != *self && oldLevel >= senderLevel {
			return deny(p, "cannot change the level of a user with equal or greater power")
		}
	}
	for key, newLevel := range proposed {
		if _, existed := current[key]; existed {
			continue
		}
		if newLevel > senderLevel {
			return deny(p, "cannot grant a level above the sender's own power")
		}
	}
	return nil
}

func deny(p *event.PDU, reason string) error {
	return &DeniedError{EventID: p.EventID(), Reason: reason}
}
