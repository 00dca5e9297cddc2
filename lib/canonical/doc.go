// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical implements Matrix canonical JSON: the
// deterministic, whitespace-free encoding with code-point-sorted object
// keys that event hashes and signatures are computed over.
//
// The encoding must match what every conformant homeserver produces
// byte for byte — a remote server verifies our signatures over its own
// re-encoding of the event, so any deviation breaks federation. That
// wire contract is why this package hand-rolls the encoder instead of
// using encoding/json (which escapes '<', '>', '&', U+2028/U+2029 and
// does not sort keys) or lib/codec's deterministic CBOR (a different
// wire format entirely).
//
// Event content is schemaless: unknown fields must survive a
// parse/encode round trip unchanged. Values are therefore modeled as a
// tagged union — null, bool, integer, string, array, object — with
// objects preserving insertion order on parse. Floats are rejected:
// canonical JSON permits only integers in the ±(2^53-1) range.
//
// The package also computes the two digests derived from canonical
// form: the content hash (event with signatures, hashes, and unsigned
// removed) and the reference hash (signatures and unsigned removed,
// hashes kept), from which event IDs are derived.
package canonical
