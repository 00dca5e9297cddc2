// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"crypto/sha256"

	"github.com/bureau-foundation/hearth/lib/ref"
)

// Fields excluded from the two digests. `unsigned` is
// non-authenticated metadata and is never covered; `signatures` can't
// cover itself; `hashes` is excluded from the content hash it carries
// but included in the reference hash so the event ID commits to it.
const (
	fieldSignatures = "signatures"
	fieldHashes     = "hashes"
	fieldUnsigned   = "unsigned"
)

// ContentHash computes the SHA-256 content hash of an event: the
// canonical encoding with signatures, hashes, and unsigned removed.
// This is the value recorded as the `sha256` entry of the event's
// `hashes` block.
func ContentHash(event Value) ([32]byte, error) {
	if event.Kind() != Object {
		return [32]byte{}, errorf("event is not a JSON object")
	}
	stripped := event.Without(fieldSignatures, fieldHashes, fieldUnsigned)
	return sha256.Sum256(Encode(stripped)), nil
}

// SigningBytes returns the canonical bytes an event's signatures are
// computed over: the event with signatures and unsigned removed but
// hashes kept.
func SigningBytes(event Value) ([]byte, error) {
	if event.Kind() != Object {
		return nil, errorf("event is not a JSON object")
	}
	return Encode(event.Without(fieldSignatures, fieldUnsigned)), nil
}

// ReferenceHash computes the SHA-256 reference hash: the digest of the
// signing bytes. Event IDs are derived from it, which is what makes an
// event ID a pure function of the event's significant content.
func ReferenceHash(event Value) ([32]byte, error) {
	signingBytes, err := SigningBytes(event)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(signingBytes), nil
}

// EventID derives the event's ID from its reference hash: '$' plus the
// unpadded URL-safe base64 digest.
func EventID(event Value) (ref.EventID, error) {
	digest, err := ReferenceHash(event)
	if err != nil {
		return ref.EventID{}, err
	}
	return ref.EventIDFromHash(digest), nil
}
