// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"

	"github.com/bureau-foundation/hearth/lib/ref"
)

// DeniedError is a rule engine refusal: the event is well-formed and
// authentic but not permitted by the room state it declared. Terminal
// for state purposes — the event is kept in the graph for audit but
// never contributes to resolved state.
type DeniedError struct {
	EventID ref.EventID
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("auth: event %s denied: %s", e.EventID, e.Reason)
}

// MissingAuthEventError reports that the state supplied to the rule
// engine lacks a state event the rules require (most often the room's
// create event). A dependency gap, not a refusal: the caller may
// backfill and retry.
type MissingAuthEventError struct {
	EventID ref.EventID
	Missing string
}

func (e *MissingAuthEventError) Error() string {
	return fmt.Sprintf("auth: event %s: required auth event %s not in supplied state", e.EventID, e.Missing)
}

// ACLDeniedError reports that a server is blocked by the room's
// m.room.server_acl state. Rejects every event the server sends to
// that room before per-event rules run.
type ACLDeniedError struct {
	Server ref.ServerName
	RoomID ref.RoomID
}

func (e *ACLDeniedError) Error() string {
	return fmt.Sprintf("auth: server %s is denied by the ACL of room %s", e.Server, e.RoomID)
}
