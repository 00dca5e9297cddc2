// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"fmt"

	"github.com/bureau-foundation/hearth/lib/ref"
)

// KeyResolutionError reports that a verification key could not be
// obtained: the fetch failed, the key document was malformed or badly
// self-signed, or the document did not contain the requested key.
// Retryable with backoff; distinct from cryptographic failure.
type KeyResolutionError struct {
	Server ref.ServerName
	KeyID  ref.KeyID
	Reason string
	Err    error
}

func (e *KeyResolutionError) Error() string {
	msg := fmt.Sprintf("keyring: cannot resolve key %s for %s: %s", e.KeyID, e.Server, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyResolutionError) Unwrap() error { return e.Err }

// VerificationError reports that an event's signature is present but
// cryptographically invalid, or was made with a key that was already
// expired when the event was created. Terminal — never retried, and
// never silently treated as success.
type VerificationError struct {
	EventID ref.EventID
	Server  ref.ServerName
	Reason  string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("keyring: event %s from %s failed verification: %s", e.EventID, e.Server, e.Reason)
}
