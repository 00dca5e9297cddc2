// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/base64"

	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// Builder assembles a new PDU for a local room action. Build computes
// the content hash and derives the event ID, producing the same value
// Parse would for the equivalent wire event. Signing happens
// afterwards, in federation/keyring, over the built value.
type Builder struct {
	RoomID         ref.RoomID
	Sender         ref.UserID
	Type           ref.EventType
	StateKey       *string
	Content        canonical.Value
	PrevEvents     []ref.EventID
	AuthEvents     []ref.EventID
	Depth          int64
	OriginServerTS int64
}

// BuildValue assembles the canonical event value with its content hash
// filled in. Use this form when the event still needs signatures
// appended before parsing.
func (b Builder) BuildValue() (canonical.Value, error) {
	value := canonical.NewObject()
	value.Set("room_id", canonical.NewString(b.RoomID.String()))
	value.Set("sender", canonical.NewString(b.Sender.String()))
	value.Set("type", canonical.NewString(string(b.Type)))
	if b.StateKey != nil {
		value.Set("state_key", canonical.NewString(*b.StateKey))
	}
	content := b.Content
	if content.Kind() != canonical.Object {
		content = canonical.NewObject()
	}
	value.Set("content", content)
	value.Set("prev_events", eventIDArray(b.PrevEvents))
	value.Set("auth_events", eventIDArray(b.AuthEvents))
	value.Set("depth", canonical.NewInt(b.Depth))
	value.Set("origin_server_ts", canonical.NewInt(b.OriginServerTS))

	digest, err := canonical.ContentHash(value)
	if err != nil {
		return canonical.Value{}, err
	}
	hashes := canonical.NewObject()
	hashes.Set("sha256", canonical.NewString(base64.RawStdEncoding.EncodeToString(digest[:])))
	value.Set("hashes", hashes)
	return value, nil
}

// Build assembles and parses the event in one step, for callers that
// do not need to sign it (tests, soft-failed audit records).
func (b Builder) Build() (*PDU, error) {
	value, err := b.BuildValue()
	if err != nil {
		return nil, err
	}
	return FromValue(value)
}

func eventIDArray(ids []ref.EventID) canonical.Value {
	elements := make([]canonical.Value, len(ids))
	for i, id := range ids {
		elements[i] = canonical.NewString(id.String())
	}
	return canonical.NewArray(elements...)
}
