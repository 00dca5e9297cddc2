// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types for the
// federation admission socket: the Unix socket protocol between the
// transport front-end (reverse proxy, test harness) and the
// hearth-federation daemon. Both sides import this package so the wire
// types are defined once rather than mirrored.
package ipc
