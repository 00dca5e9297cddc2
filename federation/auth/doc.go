// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth is the per-event-type authorization rule engine.
//
// Allowed decides whether a single event is permitted given a room
// state — a mapping from (event type, state key) to the event holding
// that state. The caller chooses which state to supply: the state
// reachable through the event's declared auth_events for reproducible
// admission checks, or the accumulated state of a resolution pass
// during state resolution. The rules never read anything else, which
// is what makes authorization a pure function of the event and its
// declared dependencies.
//
// The rule set is the room version 10 table: integer-only power
// levels, join rules public/invite/knock/restricted, and the fixed
// power defaults (state events 50, moderation actions 50, everything
// else 0, creator 100 until a power_levels event exists).
//
// Server ACLs are enforced at two points: CheckServerACL gates whole
// transactions at the processor boundary, and the per-event rules
// cover the m.room.server_acl state event itself like any other
// power-gated state change.
package auth
