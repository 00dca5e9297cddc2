// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// KeyID is a validated Matrix signing key ID (e.g., "ed25519:a_AbCd").
//
// Key IDs combine a signature algorithm tag and an opaque identifier,
// separated by a colon. They appear as the inner map keys of event
// signature blocks and as the `verify_keys` keys of server key
// documents. The algorithm tag is what the verifier dispatches on;
// Hearth only implements ed25519 but parses any well-formed key ID so
// that unknown algorithms can be skipped rather than rejected.
//
// KeyID is an immutable value type. The zero value is not valid;
// use IsZero to check.
type KeyID struct {
	id string
}

// AlgorithmEd25519 is the only signature algorithm the verifier
// implements. Key IDs with other algorithm tags parse fine but never
// validate a signature.
const AlgorithmEd25519 = "ed25519"

// ParseKeyID validates and wraps a raw key ID string. Returns an error
// if the string is empty, has no ':' separator, or has an empty
// algorithm or identifier part.
func ParseKeyID(raw string) (KeyID, error) {
	if raw == "" {
		return KeyID{}, fmt.Errorf("empty key ID")
	}
	colonIndex := strings.IndexByte(raw, ':')
	if colonIndex < 0 {
		return KeyID{}, fmt.Errorf("key ID %q: missing ':' between algorithm and identifier", raw)
	}
	if colonIndex == 0 {
		return KeyID{}, fmt.Errorf("key ID %q: empty algorithm", raw)
	}
	if colonIndex == len(raw)-1 {
		return KeyID{}, fmt.Errorf("key ID %q: empty identifier", raw)
	}
	return KeyID{id: raw}, nil
}

// MustParseKeyID is like ParseKeyID but panics on error. Use in tests
// and static initialization where the input is known-valid.
func MustParseKeyID(raw string) KeyID {
	k, err := ParseKeyID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseKeyID(%q): %v", raw, err))
	}
	return k
}

// String returns the full key ID string (e.g., "ed25519:a_AbCd").
func (k KeyID) String() string { return k.id }

// IsZero reports whether the KeyID is the zero value (uninitialized).
func (k KeyID) IsZero() bool { return k.id == "" }

// Algorithm returns the algorithm tag (the part before the ':').
// Panics if called on a zero-value KeyID.
func (k KeyID) Algorithm() string {
	if k.id == "" {
		panic("KeyID.Algorithm called on zero value")
	}
	return k.id[:strings.IndexByte(k.id, ':')]
}

// Identifier returns the opaque identifier (the part after the ':').
// Panics if called on a zero-value KeyID.
func (k KeyID) Identifier() string {
	if k.id == "" {
		panic("KeyID.Identifier called on zero value")
	}
	return k.id[strings.IndexByte(k.id, ':')+1:]
}

// MarshalText implements encoding.TextMarshaler.
func (k KeyID) MarshalText() ([]byte, error) {
	if k.id == "" {
		return []byte{}, nil
	}
	return []byte(k.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the
// key ID format. An empty input produces the zero value.
func (k *KeyID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*k = KeyID{}
		return nil
	}
	parsed, err := ParseKeyID(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
