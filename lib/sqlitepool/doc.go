// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides Hearth's standard SQLite connection pool.
//
// The federation event store and transaction ledger live in SQLite.
// This package wraps zombiezen.com/go/sqlite with the pragmas Hearth
// relies on: WAL journaling for concurrent readers against the
// single-writer rooms, FULL synchronous because the event graph is the
// durable source of truth (an event acknowledged to a federation peer
// must survive power loss), and a busy timeout so brief write
// contention degrades to waiting instead of SQLITE_BUSY errors.
//
// The pool is built on zombiezen's sqlitex.Pool: callers [Pool.Take] a
// connection, perform work, and [Pool.Put] it back. Connections are
// not safe for concurrent use — each goroutine holds its own for the
// duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: reads never block the room writer; the room
//     writer never blocks reads.
//   - synchronous=FULL: fsync per commit. Federation acknowledgements
//     promise durability, so the cheaper NORMAL level is not enough.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - foreign_keys=OFF: the store manages referential integrity
//     itself; events may reference ancestors that arrive later.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - temp_store=MEMORY: temporary indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/hearth/federation.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// The package is intentionally thin: standard pragmas, the underlying
// zombiezen types exposed directly, no query builder. Stores write
// SQL and manage transactions with sqlitex.
package sqlitepool
