// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package transaction is the federation transaction processor: the
// inbound path that turns a peer's batch of events into per-event
// verdicts and durable graph state.
//
// Each PDU moves through a fixed pipeline: parse and content-hash
// check, origin signature verification (with bounded retry when the
// origin's keys cannot be resolved), the room's server ACL gate,
// dependency resolution with bounded-depth backfill from the origin,
// authorization against the event's declared auth events, and finally
// graph insertion with state resolution across the room's forward
// extremities. Every failure is local to its event; one bad PDU never
// aborts its siblings.
//
// Rooms are the unit of mutual exclusion: graph insertion and state
// recomputation for a room are serialized behind the room's lock,
// while parsing, signature checks, and backfill fetches run outside
// it. Different rooms proceed in parallel.
//
// Transactions are idempotent per (origin, transaction ID): the first
// processing records its verdicts in the storage ledger, and replays
// return the recorded verdicts without touching the graph.
//
// EDUs are fire-and-forget: they bypass the graph entirely, and a
// failing sink is logged and ignored.
package transaction
