// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/hearth/federation/auth"
	"github.com/bureau-foundation/hearth/federation/event"
	"github.com/bureau-foundation/hearth/lib/codec"
	"github.com/bureau-foundation/hearth/lib/ref"
	"github.com/bureau-foundation/hearth/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	room_id  TEXT NOT NULL,
	body     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS events_by_room ON events (room_id);

CREATE TABLE IF NOT EXISTS room_state (
	room_id  TEXT PRIMARY KEY,
	snapshot BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	origin         TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	results        BLOB NOT NULL,
	PRIMARY KEY (origin, transaction_id)
);
`

// zstdEncoder and zstdDecoder are shared across all SQLite stores.
// Both are safe for concurrent use; EncodeAll/DecodeAll never touch
// the nil stream passed at construction.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// SQLite is the production Store: event bodies as zstd-compressed
// canonical JSON, state snapshots as deterministic CBOR, transaction
// verdicts in a ledger keyed by (origin, transaction ID).
type SQLite struct {
	pool *sqlitepool.Pool
}

// OpenSQLite opens (and if needed creates) the federation database at
// path. The caller must Close the store when done.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &SQLite{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

// Event implements Store.
func (s *SQLite) Event(ctx context.Context, id ref.EventID) (*event.PDU, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var body []byte
	err = sqlitex.Execute(conn, "SELECT body FROM events WHERE event_id = ?", &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			body = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, body)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load event %s: %w", id, err)
	}
	if body == nil {
		return nil, ErrNotFound
	}
	raw, err := zstdDecoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: decompress event %s: %w", id, err)
	}
	p, err := event.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("storage: stored event %s is corrupt: %w", id, err)
	}
	return p, nil
}

// PutEvent implements Store. INSERT OR IGNORE keeps the table
// append-only: a duplicate event ID never rewrites the stored body.
func (s *SQLite) PutEvent(ctx context.Context, p *event.PDU) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	compressed := zstdEncoder.EncodeAll(p.CanonicalJSON(), nil)
	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO events (event_id, room_id, body) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{p.EventID().String(), p.RoomID().String(), compressed},
		})
	if err != nil {
		return fmt.Errorf("storage: store event %s: %w", p.EventID(), err)
	}
	return nil
}

// State implements Store. The snapshot holds event IDs; the events
// themselves are loaded from the events table.
func (s *SQLite) State(ctx context.Context, roomID ref.RoomID) (auth.StateMap, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = sqlitex.Execute(conn, "SELECT snapshot FROM room_state WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{roomID.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raw = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, raw)
			return nil
		},
	})
	s.pool.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("storage: load state of %s: %w", roomID, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	var snapshot stateSnapshot
	if err := codec.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("storage: state snapshot of %s is corrupt: %w", roomID, err)
	}
	state := make(auth.StateMap, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		id, err := ref.ParseEventID(entry.EventID)
		if err != nil {
			return nil, fmt.Errorf("storage: state snapshot of %s: %w", roomID, err)
		}
		p, err := s.Event(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("storage: state snapshot of %s references missing event %s: %w", roomID, id, err)
		}
		state[auth.StateKey{Type: ref.EventType(entry.Type), Key: entry.StateKey}] = p
	}
	return state, nil
}

// PutState implements Store.
func (s *SQLite) PutState(ctx context.Context, roomID ref.RoomID, state auth.StateMap) error {
	raw, err := codec.Marshal(snapshotState(state))
	if err != nil {
		return fmt.Errorf("storage: encode state of %s: %w", roomID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO room_state (room_id, snapshot) VALUES (?, ?) ON CONFLICT (room_id) DO UPDATE SET snapshot = excluded.snapshot",
		&sqlitex.ExecOptions{
			Args: []any{roomID.String(), raw},
		})
	if err != nil {
		return fmt.Errorf("storage: store state of %s: %w", roomID, err)
	}
	return nil
}

// TransactionResult implements Store.
func (s *SQLite) TransactionResult(ctx context.Context, origin ref.ServerName, transactionID string) (map[string]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var raw []byte
	err = sqlitex.Execute(conn,
		"SELECT results FROM transactions WHERE origin = ? AND transaction_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{origin.String(), transactionID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				raw = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, raw)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("storage: load transaction %s/%s: %w", origin, transactionID, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var results map[string]string
	if err := codec.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("storage: transaction record %s/%s is corrupt: %w", origin, transactionID, err)
	}
	return results, nil
}

// PutTransactionResult implements Store. INSERT OR IGNORE: the first
// recorded outcome of a transaction is the permanent one.
func (s *SQLite) PutTransactionResult(ctx context.Context, origin ref.ServerName, transactionID string, results map[string]string) error {
	raw, err := codec.Marshal(results)
	if err != nil {
		return fmt.Errorf("storage: encode transaction record: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO transactions (origin, transaction_id, results) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{origin.String(), transactionID, raw},
		})
	if err != nil {
		return fmt.Errorf("storage: record transaction %s/%s: %w", origin, transactionID, err)
	}
	return nil
}
