// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/hearth/lib/ref"
)

// HashMismatchError reports that an event's declared sha256 content
// hash disagrees with the hash recomputed from its content. The event
// has been tampered with in transit (or the origin is buggy); it is
// rejected and never stored.
type HashMismatchError struct {
	Declared string
	Computed string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("event: content hash mismatch: declared %s, computed %s", e.Declared, e.Computed)
}

// CycleError reports an insertion whose prev_events ancestry would
// close a cycle in the event graph. Honest content-addressed events
// cannot cycle; this is a malformed or adversarial input.
type CycleError struct {
	EventID ref.EventID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("event: inserting %s would close a cycle", e.EventID)
}

// ErrDuplicateEvent is returned by Graph.Insert when the event is
// already present. Callers treat it as an idempotent no-op or an
// error depending on context.
var ErrDuplicateEvent = errors.New("event: already in graph")

// ErrUnknownRoom is returned by Graph.Insert when the event's room_id
// does not match the graph's room.
var ErrUnknownRoom = errors.New("event: room ID does not match graph")
