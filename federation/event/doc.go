// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the persistent data unit (PDU) — the signed,
// hash-chained room event exchanged over federation — and the
// append-only event graph that orders them.
//
// A PDU is immutable once parsed. Parse validates shape, checks the
// declared content hash against the recomputed one, and derives the
// event ID from the reference hash; an event whose ID you hold is an
// event whose significant content you have verified. Everything
// downstream (signature verification, authorization, state
// resolution) works over these parsed values.
//
// The Graph is an arena keyed by event ID with parent edges following
// prev_events. It tolerates references to unseen ancestors — gaps are
// reported, not dropped — and rejects insertions that would close a
// cycle, so traversal code never needs cycle guards.
package event
