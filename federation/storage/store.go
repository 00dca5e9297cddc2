// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/bureau-foundation/hearth/federation/auth"
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// ErrNotFound reports a lookup miss: unknown event ID, room without a
// state snapshot, or an unseen transaction.
var ErrNotFound = errors.New("storage: not found")

// Store is the federation core's persistence boundary.
type Store interface {
	// Event returns a stored event, or ErrNotFound.
	Event(ctx context.Context, id ref.EventID) (*event.PDU, error)

	// PutEvent appends an event. Idempotent: storing an already-known
	// event ID is a no-op.
	PutEvent(ctx context.Context, p *event.PDU) error

	// State returns the room's current resolved state, or ErrNotFound
	// when the room has no snapshot yet.
	State(ctx context.Context, roomID ref.RoomID) (auth.StateMap, error)

	// PutState replaces the room's state snapshot.
	PutState(ctx context.Context, roomID ref.RoomID, state auth.StateMap) error

	// TransactionResult returns the recorded per-event verdicts of a
	// previously processed transaction, or ErrNotFound.
	TransactionResult(ctx context.Context, origin ref.ServerName, transactionID string) (map[string]string, error)

	// PutTransactionResult records a transaction's per-event verdicts.
	PutTransactionResult(ctx context.Context, origin ref.ServerName, transactionID string, results map[string]string) error
}

// stateSnapshot is the serialized form of a resolved state: one entry
// per state slot, sorted so the encoding is deterministic.
type stateSnapshot struct {
	Entries []stateEntry `cbor:"entries"`
}

type stateEntry struct {
	Type     string `cbor:"type"`
	StateKey string `cbor:"state_key"`
	EventID  string `cbor:"event_id"`
}

func snapshotState(state auth.StateMap) stateSnapshot {
	snapshot := stateSnapshot{Entries: make([]stateEntry, 0, len(state))}
	for slot, p := range state {
		snapshot.Entries = append(snapshot.Entries, stateEntry{
			Type:     string(slot.Type),
			StateKey: slot.Key,
			EventID:  p.EventID().String(),
		})
	}
	sort.Slice(snapshot.Entries, func(i, j int) bool {
		a, b := snapshot.Entries[i], snapshot.Entries[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.StateKey < b.StateKey
	})
	return snapshot
}
