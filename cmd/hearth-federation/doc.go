// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// hearth-federation is the Hearth federation node daemon. It loads the
// YAML configuration (HEARTH_CONFIG or --config), opens the event
// store, assembles the keyring and transaction processor, and serves
// the admission socket until SIGINT or SIGTERM.
//
// The admission socket is a Unix socket speaking the CBOR protocol in
// lib/ipc: the transport front-end (which owns HTTP routing and
// request authentication) submits transactions and receives per-event
// verdicts. Keeping HTTP out of the daemon keeps the federation core
// testable against the socket alone.
//
// On first start the daemon generates an ed25519 signing key at the
// configured path and logs the key ID. The self-signed server key
// document (the /_matrix/key/v2/server payload) can be printed with
// --print-key-document for out-of-band distribution.
package main
