// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

// Transaction is a CBOR-encoded federation transaction submitted to
// the daemon over the admission socket. The front-end has already
// authenticated the origin server (request signature checking is a
// transport concern); the daemon trusts the Origin field.
type Transaction struct {
	// Origin is the server name the transaction was received from.
	Origin string `cbor:"origin"`

	// TransactionID is the origin's identifier for this batch. The
	// (origin, transaction_id) pair is the idempotency key: resubmitting
	// a recorded pair returns the recorded verdicts.
	TransactionID string `cbor:"transaction_id"`

	// PDUs are raw canonical-JSON event bodies, in delivery order.
	PDUs [][]byte `cbor:"pdus"`

	// EDUs are ephemeral data units. Optional.
	EDUs []EDU `cbor:"edus,omitempty"`
}

// EDU is an ephemeral data unit: typing, presence, receipts.
type EDU struct {
	// Type is the EDU type, e.g. "m.typing".
	Type string `cbor:"type"`

	// Content is the EDU payload as raw JSON.
	Content []byte `cbor:"content"`
}

// Response carries the per-event verdicts for one transaction, or a
// transaction-level error (storage failure, cancelled processing)
// meaning the origin should redeliver.
type Response struct {
	// OK is false when the transaction as a whole failed; Error then
	// holds the reason and Verdicts is empty.
	OK bool `cbor:"ok"`

	// Error is the transaction-level failure reason, if any.
	Error string `cbor:"error,omitempty"`

	// Verdicts maps event ID (or "unparsed:<index>" for events whose
	// ID could not be derived) to its verdict string: "accepted",
	// "pending", or "rejected:<kind>".
	Verdicts map[string]string `cbor:"verdicts,omitempty"`
}
