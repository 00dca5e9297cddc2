// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

func stateKey(s string) *string { return &s }

func messageContent(body string) canonical.Value {
	content := canonical.NewObject()
	content.Set("msgtype", canonical.NewString("m.text"))
	content.Set("body", canonical.NewString(body))
	return content
}

func buildTestEvent(t *testing.T, b Builder) *PDU {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func TestParseRoundTrip(t *testing.T) {
	built := buildTestEvent(t, Builder{
		RoomID:         ref.MustParseRoomID("!room:a.org"),
		Sender:         ref.MustParseUserID("@alice:a.org"),
		Type:           ref.RoomMessage,
		Content:        messageContent("hello"),
		PrevEvents:     []ref.EventID{ref.MustParseEventID("$parent")},
		AuthEvents:     []ref.EventID{ref.MustParseEventID("$create")},
		Depth:          5,
		OriginServerTS: 1234,
	})

	parsed, err := Parse(built.CanonicalJSON())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.EventID() != built.EventID() {
		t.Errorf("event ID changed across serialization: %s vs %s", parsed.EventID(), built.EventID())
	}
	if parsed.Sender() != built.Sender() || parsed.Depth() != 5 || parsed.OriginServerTS() != 1234 {
		t.Errorf("fields lost in round trip: %+v", parsed)
	}
	if parsed.IsState() {
		t.Error("message event reported as state event")
	}
}

func TestParseKeyOrderInvariantEventID(t *testing.T) {
	// The same event serialized with different key orders must produce
	// the same derived event ID.
	built := buildTestEvent(t, Builder{
		RoomID:   ref.MustParseRoomID("!room:a.org"),
		Sender:   ref.MustParseUserID("@alice:a.org"),
		Type:     ref.RoomName,
		StateKey: stateKey(""),
		Content:  messageContent("x"),
	})
	canonicalForm := string(built.CanonicalJSON())

	// Rebuild a shuffled wire form by moving the last field first.
	cut := strings.Index(canonicalForm, `"content"`)
	if cut < 0 {
		t.Fatal("content field not found")
	}
	shuffled := "{" + canonicalForm[cut:len(canonicalForm)-1] + "," + canonicalForm[1:cut-1] + "}"

	parsed, err := Parse([]byte(shuffled))
	if err != nil {
		t.Fatalf("Parse(shuffled): %v", err)
	}
	if parsed.EventID() != built.EventID() {
		t.Errorf("event ID depends on key order: %s vs %s", parsed.EventID(), built.EventID())
	}
}

func TestParseRejectsTamperedContent(t *testing.T) {
	built := buildTestEvent(t, Builder{
		RoomID:  ref.MustParseRoomID("!room:a.org"),
		Sender:  ref.MustParseUserID("@alice:a.org"),
		Type:    ref.RoomMessage,
		Content: messageContent("original"),
	})
	tampered := strings.Replace(string(built.CanonicalJSON()), "original", "Original", 1)

	_, err := Parse([]byte(tampered))
	var hashErr *HashMismatchError
	if !errors.As(err, &hashErr) {
		t.Fatalf("expected *HashMismatchError, got %v", err)
	}
}

func TestParseRejectsMissingHashes(t *testing.T) {
	raw := `{"room_id":"!r:a.org","sender":"@a:a.org","type":"m.room.message","content":{}}`
	_, err := Parse([]byte(raw))
	var hashErr *HashMismatchError
	if !errors.As(err, &hashErr) {
		t.Fatalf("expected *HashMismatchError for absent hashes, got %v", err)
	}
}

func TestParseRejectsMalformedShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"non-object", `[1,2]`},
		{"missing sender", `{"room_id":"!r:a.org","type":"m.room.message","content":{}}`},
		{"float depth", `{"room_id":"!r:a.org","sender":"@a:a.org","type":"x","depth":1.5,"content":{}}`},
		{"bad prev entry", `{"room_id":"!r:a.org","sender":"@a:a.org","type":"x","prev_events":[5],"content":{}}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse([]byte(test.raw)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestStateKeyDistinguishesEmptyFromAbsent(t *testing.T) {
	withEmpty := buildTestEvent(t, Builder{
		RoomID:   ref.MustParseRoomID("!room:a.org"),
		Sender:   ref.MustParseUserID("@alice:a.org"),
		Type:     ref.RoomName,
		StateKey: stateKey(""),
		Content:  messageContent("x"),
	})
	without := buildTestEvent(t, Builder{
		RoomID:  ref.MustParseRoomID("!room:a.org"),
		Sender:  ref.MustParseUserID("@alice:a.org"),
		Type:    ref.RoomName,
		Content: messageContent("x"),
	})
	if !withEmpty.IsState() || !withEmpty.StateKeyEquals("") {
		t.Error("empty state key not recognized as state event")
	}
	if without.IsState() {
		t.Error("absent state key treated as state event")
	}
	if withEmpty.EventID() == without.EventID() {
		t.Error("state_key presence must affect the event ID")
	}
}

func TestParsePowerLevelsDefaults(t *testing.T) {
	p := buildTestEvent(t, Builder{
		RoomID:   ref.MustParseRoomID("!room:a.org"),
		Sender:   ref.MustParseUserID("@alice:a.org"),
		Type:     ref.RoomPowerLevels,
		StateKey: stateKey(""),
	})
	levels := ParsePowerLevels(p)
	if levels.StateDefault != 50 || levels.Ban != 50 || levels.Invite != 0 {
		t.Errorf("defaults wrong: %+v", levels)
	}
	if levels.UserLevel(ref.MustParseUserID("@nobody:x.org")) != 0 {
		t.Error("unknown user should get users_default")
	}
}

func TestParsePowerLevelsOverrides(t *testing.T) {
	content := canonical.NewObject()
	users := canonical.NewObject()
	users.Set("@alice:a.org", canonical.NewInt(100))
	content.Set("users", users)
	content.Set("invite", canonical.NewInt(50))
	events := canonical.NewObject()
	events.Set("m.room.name", canonical.NewInt(75))
	content.Set("events", events)

	p := buildTestEvent(t, Builder{
		RoomID:   ref.MustParseRoomID("!room:a.org"),
		Sender:   ref.MustParseUserID("@alice:a.org"),
		Type:     ref.RoomPowerLevels,
		StateKey: stateKey(""),
		Content:  content,
	})
	levels := ParsePowerLevels(p)
	if levels.UserLevel(ref.MustParseUserID("@alice:a.org")) != 100 {
		t.Error("explicit user level ignored")
	}
	if levels.Invite != 50 {
		t.Error("invite override ignored")
	}
	if levels.EventLevel(ref.RoomName, true) != 75 {
		t.Error("explicit event level ignored")
	}
	if levels.EventLevel(ref.RoomJoinRules, true) != 50 {
		t.Error("state_default not applied for unlisted state event")
	}
	if levels.EventLevel(ref.RoomMessage, false) != 0 {
		t.Error("events_default not applied for unlisted message event")
	}
}

func TestParseServerACLContentDefaults(t *testing.T) {
	p := buildTestEvent(t, Builder{
		RoomID:   ref.MustParseRoomID("!room:a.org"),
		Sender:   ref.MustParseUserID("@alice:a.org"),
		Type:     ref.RoomServerACL,
		StateKey: stateKey(""),
	})
	acl := ParseServerACLContent(p)
	if len(acl.Allow) != 1 || acl.Allow[0] != "*" {
		t.Errorf("default allow = %v, want [*]", acl.Allow)
	}
	if !acl.AllowIPLiterals {
		t.Error("allow_ip_literals should default to true")
	}
}
