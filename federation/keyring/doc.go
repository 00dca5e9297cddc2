// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring holds the server key trust store and event signature
// verification.
//
// The Store caches remote servers' ed25519 verification keys with
// their stated expiry. An unknown or stale key triggers an on-demand
// fetch of the origin's key document, which must be correctly
// self-signed before anything it contains is trusted. Fetch failures
// (network, malformed document, missing requested key) are
// KeyResolutionError — retryable, and distinct from cryptographic
// failure, which is VerificationError and never retried.
//
// Key rotation is tolerated without invalidating history: an
// expired-but-previously-valid key still verifies events whose
// origin_server_ts predates the key's valid_until_ts.
//
// The Store is shared by all rooms. Reads are lock-cheap; cache writes
// on fetch are atomic per (server, key ID) entry. Signature checks do
// not hold any room lock — the transaction processor resolves
// signatures before an event enters its room's queue.
package keyring
