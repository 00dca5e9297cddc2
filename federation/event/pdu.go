// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/base64"
	"fmt"

	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// PDU is a persistent data unit: one signed, causally-linked room
// event. Immutable once constructed — Parse is the only way to obtain
// one from federation input, and it verifies the content hash and
// derives the event ID before handing the value out.
type PDU struct {
	eventID        ref.EventID
	roomID         ref.RoomID
	sender         ref.UserID
	eventType      ref.EventType
	stateKey       *string
	depth          int64
	originServerTS int64
	prevEvents     []ref.EventID
	authEvents     []ref.EventID
	content        canonical.Value

	// raw is the full parsed event, retained for signing-byte
	// computation and re-serialization. Unsigned metadata lives only
	// here; it is not authenticated and gets no accessor.
	raw canonical.Value
}

// Parse validates a raw federation event: canonical shape, required
// fields, content hash. On success the returned PDU carries the
// derived event ID. A *canonical.Error means the event shape is
// malformed; a *HashMismatchError means the content was altered after
// hashing. Both are fatal to this event only.
func Parse(rawJSON []byte) (*PDU, error) {
	value, err := canonical.ParseObject(rawJSON)
	if err != nil {
		return nil, err
	}
	return FromValue(value)
}

// FromValue builds a PDU from an already-parsed canonical value. Used
// by Parse and by tests that construct events programmatically.
func FromValue(value canonical.Value) (*PDU, error) {
	p := &PDU{raw: value}

	roomID, err := stringField(value, "room_id")
	if err != nil {
		return nil, err
	}
	if p.roomID, err = ref.ParseRoomID(roomID); err != nil {
		return nil, fmt.Errorf("event: %w", err)
	}

	sender, err := stringField(value, "sender")
	if err != nil {
		return nil, err
	}
	if p.sender, err = ref.ParseUserID(sender); err != nil {
		return nil, fmt.Errorf("event: %w", err)
	}

	eventType, err := stringField(value, "type")
	if err != nil {
		return nil, err
	}
	p.eventType = ref.EventType(eventType)

	if stateKey, ok := value.Get("state_key"); ok {
		if stateKey.Kind() != canonical.String {
			return nil, fmt.Errorf("event: state_key is not a string")
		}
		s := stateKey.StringValue()
		p.stateKey = &s
	}

	p.depth = intField(value, "depth")
	p.originServerTS = intField(value, "origin_server_ts")

	if p.prevEvents, err = eventIDList(value, "prev_events"); err != nil {
		return nil, err
	}
	if p.authEvents, err = eventIDList(value, "auth_events"); err != nil {
		return nil, err
	}

	content, ok := value.Get("content")
	if !ok || content.Kind() != canonical.Object {
		return nil, fmt.Errorf("event: missing or non-object content")
	}
	p.content = content

	if err := checkContentHash(value); err != nil {
		return nil, err
	}

	if p.eventID, err = canonical.EventID(value); err != nil {
		return nil, err
	}
	return p, nil
}

// checkContentHash recomputes the sha256 content hash and compares it
// to the declared hashes entry.
func checkContentHash(value canonical.Value) error {
	computed, err := canonical.ContentHash(value)
	if err != nil {
		return err
	}
	computedB64 := base64.RawStdEncoding.EncodeToString(computed[:])

	hashes, ok := value.Get("hashes")
	if !ok || hashes.Kind() != canonical.Object {
		return &HashMismatchError{Declared: "(absent)", Computed: computedB64}
	}
	declared, ok := hashes.Get("sha256")
	if !ok || declared.Kind() != canonical.String {
		return &HashMismatchError{Declared: "(absent)", Computed: computedB64}
	}
	// Origins differ on padding; compare decoded bytes, not strings.
	declaredBytes, err := decodeBase64(declared.StringValue())
	if err != nil || string(declaredBytes) != string(computed[:]) {
		return &HashMismatchError{Declared: declared.StringValue(), Computed: computedB64}
	}
	return nil
}

func stringField(value canonical.Value, key string) (string, error) {
	field, ok := value.Get(key)
	if !ok || field.Kind() != canonical.String {
		return "", fmt.Errorf("event: missing or non-string %s", key)
	}
	return field.StringValue(), nil
}

func intField(value canonical.Value, key string) int64 {
	field, ok := value.Get(key)
	if !ok || field.Kind() != canonical.Int {
		return 0
	}
	return field.IntValue()
}

func eventIDList(value canonical.Value, key string) ([]ref.EventID, error) {
	field, ok := value.Get(key)
	if !ok {
		return nil, nil
	}
	if field.Kind() != canonical.Array {
		return nil, fmt.Errorf("event: %s is not an array", key)
	}
	ids := make([]ref.EventID, 0, len(field.Elements()))
	for _, element := range field.Elements() {
		if element.Kind() != canonical.String {
			return nil, fmt.Errorf("event: %s entry is not a string", key)
		}
		id, err := ref.ParseEventID(element.StringValue())
		if err != nil {
			return nil, fmt.Errorf("event: %s: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// decodeBase64 accepts both unpadded (the Matrix norm) and padded
// standard base64.
func decodeBase64(s string) ([]byte, error) {
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// EventID returns the derived event ID.
func (p *PDU) EventID() ref.EventID { return p.eventID }

// RoomID returns the room this event belongs to.
func (p *PDU) RoomID() ref.RoomID { return p.roomID }

// Sender returns the user who created the event.
func (p *PDU) Sender() ref.UserID { return p.sender }

// Type returns the event type.
func (p *PDU) Type() ref.EventType { return p.eventType }

// StateKey returns the state key, or nil for a message (non-state)
// event. An empty string is a valid state key and distinct from nil.
func (p *PDU) StateKey() *string { return p.stateKey }

// IsState reports whether the event is a state event.
func (p *PDU) IsState() bool { return p.stateKey != nil }

// StateKeyEquals reports whether the event is a state event with
// exactly the given state key.
func (p *PDU) StateKeyEquals(key string) bool {
	return p.stateKey != nil && *p.stateKey == key
}

// Depth returns the declared depth. Depth is an origin-supplied
// tie-break heuristic, never ground truth for ordering.
func (p *PDU) Depth() int64 { return p.depth }

// OriginServerTS returns the origin server's wall-clock timestamp in
// milliseconds.
func (p *PDU) OriginServerTS() int64 { return p.originServerTS }

// PrevEvents returns the events this one causally follows. The slice
// is shared; callers must not mutate it.
func (p *PDU) PrevEvents() []ref.EventID { return p.prevEvents }

// AuthEvents returns the state events the sender claims authorize this
// one. The slice is shared; callers must not mutate it.
func (p *PDU) AuthEvents() []ref.EventID { return p.authEvents }

// Content returns the event's content payload.
func (p *PDU) Content() canonical.Value { return p.content }

// SigningBytes returns the canonical bytes this event's signatures are
// computed over.
func (p *PDU) SigningBytes() ([]byte, error) {
	return canonical.SigningBytes(p.raw)
}

// Signature returns the decoded signature bytes the given server made
// with the given key, or false if the event carries no such signature.
func (p *PDU) Signature(server ref.ServerName, keyID ref.KeyID) ([]byte, bool) {
	signatures, ok := p.raw.Get("signatures")
	if !ok || signatures.Kind() != canonical.Object {
		return nil, false
	}
	byKey, ok := signatures.Get(server.String())
	if !ok || byKey.Kind() != canonical.Object {
		return nil, false
	}
	signature, ok := byKey.Get(keyID.String())
	if !ok || signature.Kind() != canonical.String {
		return nil, false
	}
	decoded, err := decodeBase64(signature.StringValue())
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// SignatureKeyIDs lists the key IDs the given server signed this event
// with, in signature-block order. Malformed key IDs are skipped.
func (p *PDU) SignatureKeyIDs(server ref.ServerName) []ref.KeyID {
	signatures, ok := p.raw.Get("signatures")
	if !ok || signatures.Kind() != canonical.Object {
		return nil
	}
	byKey, ok := signatures.Get(server.String())
	if !ok || byKey.Kind() != canonical.Object {
		return nil
	}
	var ids []ref.KeyID
	for _, member := range byKey.Members() {
		if id, err := ref.ParseKeyID(member.Key); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// CanonicalJSON re-serializes the full event (including signatures and
// unsigned) in canonical form. This is what the store persists.
func (p *PDU) CanonicalJSON() []byte {
	return canonical.Encode(p.raw)
}
