// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/base64"
	"fmt"
)

// EventID is a validated Matrix event ID (e.g., "$CD66HAED5npg6074c6pDtLKalHjVfYb2q4Q3LZgrW6o").
//
// Event IDs are the reference hash of the event, encoded as unpadded
// URL-safe base64 behind a '$' sigil. They are never author-supplied:
// Hearth derives them from event content (see lib/canonical), so two
// events with identical significant content are the same event
// regardless of which server sent them. Parsing treats the body as
// opaque — the only structural checks are the sigil and non-emptiness,
// since older room versions carry a ':server' suffix.
//
// EventID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
// Returns an error if the string is empty, doesn't start with '$',
// or has nothing after the '$' prefix.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("event ID must start with '$': %q", raw)
	}
	if len(raw) < 2 {
		return EventID{}, fmt.Errorf("event ID has no content after '$': %q", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseEventID(raw string) EventID {
	e, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return e
}

// EventIDFromHash constructs an event ID from a reference hash digest:
// '$' followed by the unpadded URL-safe base64 encoding of the digest.
// This is the only way event IDs come into existence locally.
func EventIDFromHash(digest [32]byte) EventID {
	return EventID{id: "$" + base64.RawURLEncoding.EncodeToString(digest[:])}
}

// String returns the full event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value (uninitialized).
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	if e.id == "" {
		return nil, nil
	}
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the
// event ID format. An empty input produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
