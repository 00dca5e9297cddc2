// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package state computes the single authoritative room state when the
// event graph forks.
//
// Resolve takes the candidate state sets of a room's forward
// extremities and merges them deterministically: state slots every
// candidate agrees on pass through untouched; disputed slots are
// settled by replaying the disputed events — control events first, in
// power order, then everything else along the mainline of power-levels
// history — re-authorizing each against the state accumulated so far.
// An event that fails re-authorization is dropped from the outcome
// (it stays in the graph; it just doesn't win its slot).
//
// The outcome is a pure function of the set of events involved, never
// of the order the sets are supplied or the order events arrived.
// That is the property that keeps independent servers convergent: two
// servers holding the same events compute the same state.
package state
