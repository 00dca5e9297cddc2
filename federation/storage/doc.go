// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage persists the federation core's durable data: the
// append-only event graph, each room's current resolved state, and
// the transaction ledger that makes federation delivery idempotent.
//
// Two implementations share the Store interface. Memory backs tests
// and ephemeral deployments. SQLite is the production store: event
// bodies are zstd-compressed canonical JSON keyed by event ID, state
// snapshots are deterministic CBOR, and the ledger records per-event
// verdicts under (origin, transaction ID).
//
// Events are append-only. PutEvent of an already-stored event is a
// no-op, never an overwrite — an event ID is a pure function of its
// content, so a second body for the same ID cannot legitimately
// differ.
package storage
