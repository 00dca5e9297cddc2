// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and advance time explicitly.
//
// Everything in the federation core that reads time goes through a
// Clock: server key expiry checks, backfill retry backoff, and
// transaction timestamps. This is what makes the expired-key grace
// rules and retry budgets testable without real sleeps.
package clock
