// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Hearth's standard binary serialization: CBOR
// with Core Deterministic Encoding (RFC 8949 §4.2). Same logical data
// always produces identical bytes.
//
// This is the encoding for internal persisted structures — resolved
// state snapshots and transaction result records in the event store.
// It is NOT a substitute for lib/canonical: event hashing and signing
// are defined over Matrix canonical JSON, a separate wire contract.
package codec
