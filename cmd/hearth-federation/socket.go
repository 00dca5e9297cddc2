// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/bureau-foundation/hearth/federation/transaction"
	"github.com/bureau-foundation/hearth/lib/canonical"
	"github.com/bureau-foundation/hearth/lib/codec"
	"github.com/bureau-foundation/hearth/lib/ipc"
	"github.com/bureau-foundation/hearth/lib/ref"
)

// admissionSocket accepts CBOR-framed transactions from the transport
// front-end over a Unix socket and feeds them to the processor. One
// request/response pair per connection.
type admissionSocket struct {
	path      string
	processor *transaction.Processor
	logger    *slog.Logger
}

// serve listens on the socket path until the context is cancelled. A
// stale socket file from a previous run is removed first.
func (s *admissionSocket) serve(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on admission socket: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("admission socket listening", "path", s.path)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(ctx, conn)
	}
}

func (s *admissionSocket) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var wire ipc.Transaction
	if err := decoder.Decode(&wire); err != nil {
		s.logger.Warn("bad admission request", "error", err)
		if err := encoder.Encode(ipc.Response{Error: "invalid request"}); err != nil {
			s.logger.Warn("write response failed", "error", err)
		}
		return
	}

	txn, err := fromWire(wire)
	if err != nil {
		if err := encoder.Encode(ipc.Response{Error: err.Error()}); err != nil {
			s.logger.Warn("write response failed", "error", err)
		}
		return
	}

	verdicts, err := s.processor.Process(ctx, txn)
	if err != nil {
		s.logger.Warn("transaction failed",
			"origin", txn.Origin, "transaction_id", txn.TransactionID, "error", err)
		if err := encoder.Encode(ipc.Response{Error: err.Error()}); err != nil {
			s.logger.Warn("write response failed", "error", err)
		}
		return
	}

	response := ipc.Response{OK: true, Verdicts: make(map[string]string, len(verdicts))}
	for id, verdict := range verdicts {
		response.Verdicts[id] = string(verdict)
	}
	if err := encoder.Encode(response); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

// fromWire translates the socket wire form into the processor's input.
func fromWire(wire ipc.Transaction) (transaction.Transaction, error) {
	origin, err := ref.ParseServerName(wire.Origin)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("origin: %w", err)
	}
	if wire.TransactionID == "" {
		return transaction.Transaction{}, fmt.Errorf("transaction_id is required")
	}
	txn := transaction.Transaction{
		Origin:        origin,
		TransactionID: wire.TransactionID,
		PDUs:          wire.PDUs,
	}
	for _, edu := range wire.EDUs {
		content, err := canonical.ParseObject(edu.Content)
		if err != nil {
			return transaction.Transaction{}, fmt.Errorf("EDU %s content: %w", edu.Type, err)
		}
		txn.EDUs = append(txn.EDUs, transaction.EDU{Type: edu.Type, Content: content})
	}
	return txn, nil
}
