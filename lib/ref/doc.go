// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for Matrix
// identifiers: user IDs, room IDs, event IDs, server names, event
// types, and signing key IDs.
//
// Identifiers arrive from untrusted federation peers as raw strings.
// They are parsed into these types at the boundary (transaction
// ingestion, key document fetch, config load) and passed through the
// rest of the core as typed values, so interior code never re-checks
// sigils or separators.
//
// All types follow the same conventions:
//
//   - ParseX validates and wraps a raw string; MustParseX panics and is
//     for tests and static initialization only.
//   - The zero value is not valid; use IsZero to check.
//   - MarshalText/UnmarshalText integrate with encoding/json, so struct
//     fields of these types validate automatically on decode.
package ref
