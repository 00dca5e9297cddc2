// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"

	"github.com/bureau-foundation/hearth/federation/auth"
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// Memory is an in-memory Store for tests and ephemeral deployments.
// Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	events       map[ref.EventID]*event.PDU
	states       map[ref.RoomID]auth.StateMap
	transactions map[transactionKey]map[string]string
}

type transactionKey struct {
	origin        ref.ServerName
	transactionID string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:       map[ref.EventID]*event.PDU{},
		states:       map[ref.RoomID]auth.StateMap{},
		transactions: map[transactionKey]map[string]string{},
	}
}

// Event implements Store.
func (m *Memory) Event(ctx context.Context, id ref.EventID) (*event.PDU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// PutEvent implements Store.
func (m *Memory) PutEvent(ctx context.Context, p *event.PDU) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[p.EventID()]; !exists {
		m.events[p.EventID()] = p
	}
	return nil
}

// State implements Store.
func (m *Memory) State(ctx context.Context, roomID ref.RoomID) (auth.StateMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make(auth.StateMap, len(state))
	for slot, p := range state {
		copied[slot] = p
	}
	return copied, nil
}

// PutState implements Store.
func (m *Memory) PutState(ctx context.Context, roomID ref.RoomID, state auth.StateMap) error {
	copied := make(auth.StateMap, len(state))
	for slot, p := range state {
		copied[slot] = p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[roomID] = copied
	return nil
}

// TransactionResult implements Store.
func (m *Memory) TransactionResult(ctx context.Context, origin ref.ServerName, transactionID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.transactions[transactionKey{origin, transactionID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make(map[string]string, len(results))
	for id, verdict := range results {
		copied[id] = verdict
	}
	return copied, nil
}

// PutTransactionResult implements Store. The first recorded outcome
// of a transaction is permanent; later writes are ignored.
func (m *Memory) PutTransactionResult(ctx context.Context, origin ref.ServerName, transactionID string, results map[string]string) error {
	copied := make(map[string]string, len(results))
	for id, verdict := range results {
		copied[id] = verdict
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := transactionKey{origin, transactionID}
	if _, exists := m.transactions[key]; !exists {
		m.transactions[key] = copied
	}
	return nil
}
