// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package transaction

// Verdict is the per-event outcome of transaction processing. The
// wire layer translates these into Matrix responses; the storage
// ledger records them verbatim for idempotent replay.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"

	// VerdictPending marks events the batch never reached because the
	// caller cancelled. Pending verdicts are not recorded; the peer is
	// expected to redeliver the transaction.
	VerdictPending Verdict = "pending"

	RejectedMalformed    Verdict = "rejected:malformed"
	RejectedHashMismatch Verdict = "rejected:hash_mismatch"
	RejectedSignature    Verdict = "rejected:signature"
	RejectedKey          Verdict = "rejected:key_resolution"
	RejectedACL          Verdict = "rejected:acl"
	RejectedAuth         Verdict = "rejected:auth"
	RejectedDependency   Verdict = "rejected:unresolvable_dependency"
)
