// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for asynchronous
// code: channel operations with timeout safety valves so a broken
// test fails fast instead of hanging the suite.
package testutil
